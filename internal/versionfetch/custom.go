package versionfetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// Custom fetches from an arbitrary index, using the manifest's
// `source.command` field to pick an extraction strategy:
//
//   - "http-text:<url>:<regex>" fetches the body as text and returns every
//     match of the regex's first capture group as a version.
//   - "json-pointer:<url>:<pointer>" fetches JSON and walks a slash-separated
//     pointer (RFC 6901-flavored) to a []string of version strings.
//
// This is vx's answer to spec.md §4.4's "arbitrary URL + JSON pointer
// extraction" custom source, extended with a text/regex mode because some
// vendor indices (e.g. nodejs.org's dist listing) aren't flat JSON arrays.
type Custom struct {
	Command string
	client  *http.Client
}

func NewCustom(command string, client *http.Client) *Custom {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &Custom{Command: command, client: client}
}

func (f *Custom) Fetch(ctx context.Context, runtimeName string) ([]VersionInfo, error) {
	parts := strings.SplitN(f.Command, ":", 2)
	if len(parts) != 2 {
		return nil, vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed,
			"custom version source command must start with a strategy prefix").
			WithDetail("command", f.Command)
	}

	switch parts[0] {
	case "http-text":
		return f.fetchText(ctx, runtimeName, parts[1])
	case "json-pointer":
		return f.fetchJSONPointer(ctx, runtimeName, parts[1])
	default:
		return nil, vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed,
			"unknown custom version source strategy").
			WithDetail("strategy", parts[0])
	}
}

func (f *Custom) fetchText(ctx context.Context, runtimeName, rest string) ([]VersionInfo, error) {
	// rest is "<url>:<regex>"; the url itself contains ':' (scheme
	// separator), so split on the last colon rather than the first.
	lastColon := strings.LastIndex(rest, ":")
	if lastColon < 0 {
		return nil, vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed,
			"http-text command must be \"http-text:<url>:<regex>\"").WithDetail("command", f.Command)
	}
	targetURL := rest[:lastColon]
	pattern := rest[lastColon+1:]

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed,
			"invalid regex in http-text command", err).WithDetail("pattern", pattern)
	}

	body, err := f.get(ctx, targetURL)
	if err != nil {
		return nil, newFetchError("custom", runtimeName, err)
	}

	matches := re.FindAllStringSubmatch(string(body), -1)
	seen := make(map[string]bool, len(matches))
	out := make([]VersionInfo, 0, len(matches))
	for _, m := range matches {
		version := m[0]
		if len(m) > 1 {
			version = m[1]
		}
		if seen[version] {
			continue
		}
		seen[version] = true
		out = append(out, VersionInfo{Version: version})
	}
	return out, nil
}

func (f *Custom) fetchJSONPointer(ctx context.Context, runtimeName, rest string) ([]VersionInfo, error) {
	lastColon := strings.LastIndex(rest, ":")
	if lastColon < 0 {
		return nil, vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed,
			"json-pointer command must be \"json-pointer:<url>:<pointer>\"").WithDetail("command", f.Command)
	}
	targetURL := rest[:lastColon]
	pointer := rest[lastColon+1:]

	body, err := f.get(ctx, targetURL)
	if err != nil {
		return nil, newFetchError("custom", runtimeName, err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, newFetchError("custom", runtimeName, err)
	}

	value, err := walkJSONPointer(doc, pointer)
	if err != nil {
		return nil, newFetchError("custom", runtimeName, err)
	}

	items, ok := value.([]any)
	if !ok {
		return nil, newFetchError("custom", runtimeName,
			vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed, "json pointer did not resolve to an array"))
	}

	out := make([]VersionInfo, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, VersionInfo{Version: s})
		}
	}
	return out, nil
}

func (f *Custom) get(ctx context.Context, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errStatusf("custom source", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// walkJSONPointer resolves a slash-separated path (e.g. "/versions") against
// an already-decoded JSON document.
func walkJSONPointer(doc any, pointer string) (any, error) {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return doc, nil
	}
	current := doc
	for _, seg := range strings.Split(pointer, "/") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed,
				"json pointer segment does not resolve to an object").WithDetail("segment", seg)
		}
		next, ok := m[seg]
		if !ok {
			return nil, vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed,
				"json pointer segment not found").WithDetail("segment", seg)
		}
		current = next
	}
	return current, nil
}
