package mastodon

// Account is the projection of the account lookup response we keep
type Account struct {
	Id          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Url         string `json:"url"`
}

type MediaAttachment struct {
	Id          string `json:"id"`
	Type        string `json:"type"`
	Url         string `json:"url"`
	PreviewUrl  string `json:"preview_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Status is the projection of a status we keep. CreatedAt is left as the raw
// string so a malformed timestamp can be reported per status.
type Status struct {
	Id               string            `json:"id"`
	Content          string            `json:"content"`
	Url              string            `json:"url"`
	CreatedAt        string            `json:"created_at"`
	MediaAttachments []MediaAttachment `json:"media_attachments"`
}
