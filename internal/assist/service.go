package assist

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ocrPrompt = "Transcribe all text in the following images in reading order. " +
		"Preserve the original layout and output Markdown."
	graderSystemPrompt = "You are a strict university teaching assistant."
	graderUserPrompt   = "Grade the following homework on a scale of 0 to 100 and give brief comments:\n\n%s"
	chatSystemPrompt   = "You are a homework tutoring assistant.\n" +
		"[Full homework text]:\n%s\n\n" +
		"[Grading result]:\n%s\n\n" +
		"Answer the user's questions based on the information above."
)

const (
	OpOCR   = "ocr"
	OpGrade = "grade"
	OpChat  = "chat"
)

// Analysis is the OCR transcript of one file plus the model's evaluation.
type Analysis struct {
	Filename   string `json:"filename"`
	Text       string `json:"ocr_text"`
	Evaluation string `json:"evaluation"`
}

// Recorder observes each remote call. It is satisfied by the metrics package.
type Recorder interface {
	ObserveAssist(op string, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAssist(string, time.Duration, error) {}

type Option func(*Service)

func WithOCRModel(m string) Option           { return func(s *Service) { s.ocrModel = m } }
func WithTextModel(m string) Option          { return func(s *Service) { s.textModel = m } }
func WithOCRTimeout(d time.Duration) Option  { return func(s *Service) { s.ocrTimeout = d } }
func WithTextTimeout(d time.Duration) Option { return func(s *Service) { s.textTimeout = d } }
func WithRenderer(r PageRenderer) Option     { return func(s *Service) { s.pages = r } }
func WithRecorder(r Recorder) Option         { return func(s *Service) { s.rec = r } }

// Service runs OCR, grading and chat against a Completer.
type Service struct {
	completer   Completer
	pages       PageRenderer
	rec         Recorder
	ocrModel    string
	textModel   string
	ocrTimeout  time.Duration
	textTimeout time.Duration
}

func NewService(c Completer, opts ...Option) *Service {
	s := &Service{
		completer:   c,
		pages:       NewFitzRenderer(DefaultDPI),
		rec:         nopRecorder{},
		ocrModel:    "Qwen/Qwen2-VL-72B-Instruct",
		textModel:   "Qwen/Qwen2.5-72B-Instruct",
		ocrTimeout:  180 * time.Second,
		textTimeout: 60 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	return s
}

var tracer = otel.Tracer("handin/assist")

func (s *Service) call(ctx context.Context, op string, timeout time.Duration, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "assist."+op)
	defer span.End()
	span.SetAttributes(attribute.String("assist.model", req.Model))

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := s.completer.Complete(ctx, req)
	s.rec.ObserveAssist(op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return out, nil
}

// OCR transcribes a submission. PDFs are rasterized page by page; PNG and
// JPEG files are sent as they are.
func (s *Service) OCR(ctx context.Context, filename string, data []byte) (string, error) {
	images, err := s.images(filename, data)
	if err != nil {
		return "", err
	}
	return s.call(ctx, OpOCR, s.ocrTimeout, Request{
		Model:       s.ocrModel,
		Messages:    []Message{{Role: RoleUser, Text: ocrPrompt, Images: images}},
		Temperature: float(0.1),
		MaxTokens:   4096,
	})
}

func (s *Service) images(filename string, data []byte) ([]Image, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		pages, err := s.pages.Render(data)
		if err != nil {
			return nil, &Error{Kind: KindRender, Op: OpOCR, Err: err}
		}
		out := make([]Image, len(pages))
		for i, p := range pages {
			out[i] = Image{MIME: "image/png", Data: p}
		}
		return out, nil
	}
	mime := http.DetectContentType(data)
	switch mime {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return []Image{{MIME: mime, Data: data}}, nil
	}
	return nil, &Error{Kind: KindRender, Op: OpOCR, Err: fmt.Errorf("%s: unsupported content type %s", filename, mime)}
}

// Grade asks the text model for a 0-100 score with brief comments.
func (s *Service) Grade(ctx context.Context, text string) (string, error) {
	return s.call(ctx, OpGrade, s.textTimeout, Request{
		Model: s.textModel,
		Messages: []Message{
			{Role: RoleSystem, Text: graderSystemPrompt},
			{Role: RoleUser, Text: fmt.Sprintf(graderUserPrompt, text)},
		},
	})
}

// Analyze runs OCR followed by grading.
func (s *Service) Analyze(ctx context.Context, filename string, data []byte) (Analysis, error) {
	text, err := s.OCR(ctx, filename, data)
	if err != nil {
		return Analysis{}, err
	}
	eval, err := s.Grade(ctx, text)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{Filename: filename, Text: text, Evaluation: eval}, nil
}

// Chat answers the last user message in history with the analysis as context.
// history must not contain system messages.
func (s *Service) Chat(ctx context.Context, a Analysis, history []Message) (string, error) {
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, Message{Role: RoleSystem, Text: fmt.Sprintf(chatSystemPrompt, a.Text, a.Evaluation)})
	msgs = append(msgs, history...)
	return s.call(ctx, OpChat, s.textTimeout, Request{Model: s.textModel, Messages: msgs})
}
