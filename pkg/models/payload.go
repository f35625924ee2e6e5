package models

// Payloads carried in Job.Data for each job type. The queue core never looks
// inside them; handlers decode their own.

type SketchGenerationPayload struct {
	SketchJobID string `json:"sketch_job_id" validate:"required"`
	StoryID     string `json:"story_id"      validate:"required"`
	UserID      string `json:"user_id"       validate:"required"`
	Style       string `json:"style"         validate:"required"`
	Variants    int    `json:"variants"      validate:"gte=1,lte=8"`
	Prompt      string `json:"prompt,omitempty"`
}

type EmotionAnalysisPayload struct {
	StoryID string `json:"story_id" validate:"required"`
	Text    string `json:"text"     validate:"required"`
}

type EmailPayload struct {
	To       string         `json:"to"                 validate:"required,email"`
	Subject  string         `json:"subject"            validate:"required"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

const (
	PaymentActionAuthorize = "authorize"
	PaymentActionCapture   = "capture"
	PaymentActionRefund    = "refund"
)

type PaymentPayload struct {
	OrderID     string `json:"order_id"     validate:"required"`
	Action      string `json:"action"       validate:"required,oneof=authorize capture refund"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Currency    string `json:"currency"     validate:"required,len=3"`
}
