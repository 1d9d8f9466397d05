package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/beam-cloud/salesmap/pkg/types"
)

// UpstreamStatusMessages maps mail API status codes to human-readable messages
var UpstreamStatusMessages = map[int]string{
	http.StatusBadRequest:          "The mail API rejected the request - check the template query",
	http.StatusUnauthorized:        "Authentication failed - the access token is invalid or expired",
	http.StatusForbidden:           "Access denied - the token lacks the read-only mail scope",
	http.StatusNotFound:            "Resource not found",
	http.StatusTooManyRequests:     "Rate limit exceeded - please try again later",
	http.StatusInternalServerError: "The mail API returned an internal error",
	http.StatusServiceUnavailable:  "The mail API is unavailable - try again in a few moments",
}

// UpstreamStatusSuggestions provides helpful suggestions for specific status codes
var UpstreamStatusSuggestions = map[int][]string{
	http.StatusUnauthorized: {
		"Pass a fresh token: " + CodeStyle.Render("--token <access-token>"),
		"Or let salesmap refresh one: " + CodeStyle.Render("--refresh-token <refresh-token>"),
	},
	http.StatusForbidden: {
		"Grant the gmail.readonly scope when creating the token",
	},
	http.StatusTooManyRequests: {
		"Lower " + CodeStyle.Render("gmail.requestsPerSecond") + " in the config",
		"Or use smaller chunks: " + CodeStyle.Render("--chunk-size 50"),
	},
}

// FormatError converts an error to a human-readable message
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	if upstream, ok := types.AsUpstreamError(err); ok {
		msg, exists := UpstreamStatusMessages[upstream.Status]
		if !exists {
			msg = fmt.Sprintf("The mail API returned status %d", upstream.Status)
		}
		if body := strings.TrimSpace(upstream.Body); body != "" {
			return fmt.Sprintf("%s (%s)", msg, Truncate(body, 120))
		}
		return msg
	}

	switch {
	case errors.Is(err, types.ErrUnauthenticated):
		return "No usable credential - pass an access token or a refresh token"
	case errors.Is(err, types.ErrTokenUnavailable):
		return "The refresh token could not be exchanged for an access token"
	}

	return cleanErrorMessage(err.Error())
}

// GetErrorSuggestions returns helpful suggestions for an error
func GetErrorSuggestions(err error) []string {
	if err == nil {
		return nil
	}

	if upstream, ok := types.AsUpstreamError(err); ok {
		return UpstreamStatusSuggestions[upstream.Status]
	}

	switch {
	case errors.Is(err, types.ErrUnauthenticated):
		return UpstreamStatusSuggestions[http.StatusUnauthorized]
	case errors.Is(err, types.ErrTokenUnavailable):
		return []string{
			"Check " + CodeStyle.Render("oauth.google.clientId") + " and " + CodeStyle.Render("oauth.google.clientSecret"),
			"The refresh token may have been revoked",
		}
	case errors.Is(err, types.ErrInvalidTemplate):
		return []string{"List the built-in templates: " + CodeStyle.Render("salesmap templates")}
	}
	return nil
}

// cleanErrorMessage cleans up common error message patterns
func cleanErrorMessage(msg string) string {
	msg = strings.TrimPrefix(msg, "error: ")
	msg = strings.TrimPrefix(msg, "Error: ")

	// For deeply nested errors, keep the first and last parts
	if parts := strings.Split(msg, ": "); len(parts) > 3 {
		msg = parts[0] + ": " + parts[len(parts)-1]
	}

	return msg
}

// PrintFormattedError prints an error with styling and optional suggestions
func PrintFormattedError(title string, err error) {
	fmt.Fprintln(stderr)
	PrintErrorMsg(title)

	if err != nil {
		fmt.Fprintf(stderr, "  %s\n", DimStyle.Render(FormatError(err)))

		if suggestions := GetErrorSuggestions(err); len(suggestions) > 0 {
			PrintSuggestions("Suggestions:", suggestions)
		}
	}
	fmt.Fprintln(stderr)
}
