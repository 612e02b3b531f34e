// Package render turns message text into what clients display: sanitized
// HTML for the web and single-line previews for conversation lists.
package render
