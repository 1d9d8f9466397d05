package sales

import (
	"context"
	"unicode/utf8"

	"github.com/beam-cloud/salesmap/pkg/clients"
	"github.com/beam-cloud/salesmap/pkg/types"
)

const defaultPreviewBytes = 500

// ProbeResult is what a one-message diagnostic run saw
type ProbeResult struct {
	TemplateID         string `json:"templateId"`
	Query              string `json:"query"`
	Pattern            string `json:"pattern"`
	ResultSizeEstimate int    `json:"resultSizeEstimate"`
	MessageID          string `json:"messageId,omitempty"`
	InternalDate       string `json:"internalDate,omitempty"`
	TextLength         int    `json:"textLength"`
	TextPreview        string `json:"textPreview"`
	Matched            bool   `json:"matched"`
	RawCapture         string `json:"rawCapture,omitempty"`
	Country            string `json:"country,omitempty"`
}

// Probe lists one message for the template's query, fetches it and runs the
// pattern over its text. A request template takes precedence over the
// session's here. Upstream failures are returned as *types.UpstreamError.
func (s *Service) Probe(ctx context.Context, session *types.Session, requestTemplate *types.Template) (*ProbeResult, error) {
	if session == nil {
		return nil, types.ErrUnauthenticated
	}

	token, err := s.tokens.EnsureAccessToken(ctx, session)
	if err != nil {
		return nil, err
	}

	tmpl := s.resolver.ResolveProbe(session.Template, requestTemplate)
	result := &ProbeResult{
		TemplateID: tmpl.ID,
		Query:      tmpl.SubjectQuery,
		Pattern:    tmpl.CountryPattern,
	}

	page, err := s.mail.ListMessages(ctx, token, tmpl.SubjectQuery, "", 1)
	if err != nil {
		return nil, err
	}
	result.ResultSizeEstimate = page.ResultSizeEstimate
	if len(page.Messages) == 0 {
		return result, nil
	}

	msg, err := s.mail.GetMessage(ctx, token, page.Messages[0].ID)
	if err != nil {
		return nil, err
	}
	result.MessageID = msg.ID
	result.InternalDate = msg.InternalDate

	text := clients.ExtractText(msg)
	result.TextLength = len(text)
	result.TextPreview = preview(text, s.previewBytes)

	re, err := tmpl.Compile()
	if err != nil {
		return nil, err
	}
	ex := Extract(re, text)
	result.Matched = ex.Matched
	result.RawCapture = ex.RawCapture
	result.Country = ex.Country
	return result, nil
}

// preview cuts text to at most n bytes without splitting a rune
func preview(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
