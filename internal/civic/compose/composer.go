package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/petr-muller/civicfeed/internal/civic/model"
)

// Step is the stage of the report flow
type Step string

const (
	StepCompose Step = "compose"
	StepReview  Step = "review"
)

// ErrCannotGenerate is returned when a draft is requested before the image,
// location and sign-in requirements are met
var ErrCannotGenerate = errors.New("an image, a location and a signed-in user are required")

// ErrNotSignedIn is returned when an upload is attempted without a token
var ErrNotSignedIn = errors.New("sign in to upload an image")

// Form is the editable content of a new report
type Form struct {
	Title       string
	Description string
	Location    string
	Ward        string
	ImageURL    string
	Category    string
	Confidence  *float64
	AISummary   string
}

// Payload converts the form into what the store expects
func (f Form) Payload() model.CreatePayload {
	return model.CreatePayload{
		Title:        strings.TrimSpace(f.Title),
		Description:  strings.TrimSpace(f.Description),
		Location:     strings.TrimSpace(f.Location),
		Ward:         strings.TrimSpace(f.Ward),
		Image:        f.ImageURL,
		Category:     f.Category,
		AIConfidence: f.Confidence,
		AISummary:    f.AISummary,
	}
}

// Drafter produces an AI suggestion for an uploaded image
type Drafter interface {
	DraftFromImage(ctx context.Context, req model.DraftRequest, token string) (model.Draft, error)
}

// Publisher creates issues
type Publisher interface {
	Create(ctx context.Context, payload model.CreatePayload) (model.Issue, error)
}

// TokenSource provides the reporter's bearer token
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Composer drives one report from image selection to publishing
type Composer struct {
	uploader  *Uploader
	drafter   Drafter
	geocoder  *Geocoder
	locator   Locator
	publisher Publisher
	tokens    TokenSource

	Form   Form
	Step   Step
	Coords *Coordinates
	// DraftErr holds the reason the last AI draft could not be used
	DraftErr error
}

// NewComposer creates a composer in the compose step
func NewComposer(uploader *Uploader, drafter Drafter, geocoder *Geocoder, locator Locator, publisher Publisher, tokens TokenSource) *Composer {
	return &Composer{
		uploader:  uploader,
		drafter:   drafter,
		geocoder:  geocoder,
		locator:   locator,
		publisher: publisher,
		tokens:    tokens,
		Step:      StepCompose,
	}
}

func (c *Composer) token(ctx context.Context) (string, bool) {
	if c.tokens == nil {
		return "", false
	}
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// Locate determines the reporter's position and fills the location with its
// address. When the address lookup fails, the coordinates are used as text.
func (c *Composer) Locate(ctx context.Context) (Coordinates, error) {
	coords, err := c.locator.Locate(ctx)
	if err != nil {
		return Coordinates{}, err
	}
	c.Coords = &coords

	address := coords.Fallback()
	if c.geocoder != nil {
		if address, err = c.geocoder.Reverse(ctx, coords); err != nil {
			logrus.WithError(err).Warn("Cannot resolve address, using coordinates")
		}
	}
	c.Form.Location = address
	return coords, nil
}

// Generate uploads img and asks for an AI draft. Upload problems are returned.
// A failed draft leaves whatever the reporter already typed in place and still
// moves the flow to review, so that the issue can be published manually.
func (c *Composer) Generate(ctx context.Context, img Image) error {
	token, signedIn := c.token(ctx)
	if !CanGenerate(c.Form.Location, len(img.Data) > 0, signedIn) {
		return ErrCannotGenerate
	}

	imageURL, err := c.upload(ctx, img, token)
	if err != nil {
		return err
	}
	c.DraftErr = nil

	draft, err := c.drafter.DraftFromImage(ctx, model.DraftRequest{
		ImageURL: imageURL,
		Location: strings.TrimSpace(c.Form.Location),
		Ward:     strings.TrimSpace(c.Form.Ward),
	}, token)
	if err != nil {
		c.DraftErr = err
		logrus.WithError(err).Warn("AI drafting failed, the issue can still be published manually")
		return nil
	}
	c.apply(draft)
	return nil
}

// Upload stores the image without requesting an AI draft and moves the flow
// to review
func (c *Composer) Upload(ctx context.Context, img Image) (string, error) {
	token, signedIn := c.token(ctx)
	if !signedIn {
		return "", ErrNotSignedIn
	}
	return c.upload(ctx, img, token)
}

func (c *Composer) upload(ctx context.Context, img Image, token string) (string, error) {
	imageURL, err := c.uploader.Upload(ctx, img, token)
	if err != nil {
		return "", err
	}
	c.Form.ImageURL = imageURL
	c.Step = StepReview
	return imageURL, nil
}

func (c *Composer) apply(draft model.Draft) {
	if draft.Title != "" {
		c.Form.Title = draft.Title
	}
	if draft.Description != "" {
		c.Form.Description = draft.Description
	}
	c.Form.Category = draft.Category
	confidence := draft.Confidence
	c.Form.Confidence = &confidence
	c.Form.AISummary = draft.AISummary
}

// Publish validates the form and creates the issue
func (c *Composer) Publish(ctx context.Context) (model.Issue, error) {
	if err := ValidatePublish(c.Form); err != nil {
		return model.Issue{}, err
	}
	created, err := c.publisher.Create(ctx, c.Form.Payload())
	if err != nil {
		return model.Issue{}, fmt.Errorf("Failed to create the issue: %w", err)
	}
	return created, nil
}

// MapURL links to a map preview of the detected position, if any
func (c *Composer) MapURL() string {
	if c.Coords == nil || c.Form.Location == "" {
		return ""
	}
	return c.Coords.MapURL()
}
