package gemini

import (
	"github.com/kirillkom/document-intake/internal/core/domain"
)

const analysisPrompt = "Please analyze this document and provide:\n" +
	"1. A comprehensive summary of the content\n" +
	"2. Identify the author/owner or entity this document belongs to (if detectable)\n" +
	"3. Extract key information like dates, names, organizations\n\n" +
	"Format your response as JSON with fields: summary, author, entity, keyInfo"

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func buildGenerateRequest(prompt string, doc domain.EncodedDocument, gen GenerationConfig) generateRequest {
	return generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: doc.MimeType, Data: string(doc.Data)}},
			},
		}},
		GenerationConfig: gen,
	}
}

func (r generateResponse) firstText() (string, error) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", &domain.AnalysisError{Status: "empty response", Body: "no candidates in response"}
	}
	return r.Candidates[0].Content.Parts[0].Text, nil
}
