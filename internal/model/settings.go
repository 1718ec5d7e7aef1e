package model

// Settings is the operator configuration every remote call reads from.
type Settings struct {
	FalAPIKey       string `json:"falApiKey"`
	ImagePrompt     string `json:"imagePrompt"`
	VideoPrompt     string `json:"videoPrompt"`
	ImageModel      string `json:"imageModel"`
	VideoModel      string `json:"videoModel"`
	ImageReviewMode bool   `json:"imageReviewMode"`
}

// HasCredential reports whether a credential is configured.
func (s Settings) HasCredential() bool {
	return s.FalAPIKey != ""
}

// Redacted returns a copy safe to show in responses and logs.
func (s Settings) Redacted() Settings {
	out := s
	if len(out.FalAPIKey) > 4 {
		out.FalAPIKey = "****" + out.FalAPIKey[len(out.FalAPIKey)-4:]
	} else if out.FalAPIKey != "" {
		out.FalAPIKey = "****"
	}
	return out
}

// SettingsUpdate is a partial update; nil fields are left unchanged.
type SettingsUpdate struct {
	FalAPIKey       *string `json:"falApiKey" validate:"omitempty,max=512"`
	ImagePrompt     *string `json:"imagePrompt" validate:"omitempty,min=1,max=4000"`
	VideoPrompt     *string `json:"videoPrompt" validate:"omitempty,min=1,max=4000"`
	ImageModel      *string `json:"imageModel" validate:"omitempty,min=1,max=200"`
	VideoModel      *string `json:"videoModel" validate:"omitempty,min=1,max=200"`
	ImageReviewMode *bool   `json:"imageReviewMode"`
}

// Apply merges the update into s.
func (u SettingsUpdate) Apply(s Settings) Settings {
	if u.FalAPIKey != nil {
		s.FalAPIKey = *u.FalAPIKey
	}
	if u.ImagePrompt != nil {
		s.ImagePrompt = *u.ImagePrompt
	}
	if u.VideoPrompt != nil {
		s.VideoPrompt = *u.VideoPrompt
	}
	if u.ImageModel != nil {
		s.ImageModel = *u.ImageModel
	}
	if u.VideoModel != nil {
		s.VideoModel = *u.VideoModel
	}
	if u.ImageReviewMode != nil {
		s.ImageReviewMode = *u.ImageReviewMode
	}
	return s
}
