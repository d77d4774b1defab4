package compose

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/petr-muller/civicfeed/internal/civic/auth"
	"github.com/petr-muller/civicfeed/internal/civic/model"
)

type fakeDrafter struct {
	draft model.Draft
	err   error
	req   model.DraftRequest
}

func (f *fakeDrafter) DraftFromImage(_ context.Context, req model.DraftRequest, _ string) (model.Draft, error) {
	f.req = req
	return f.draft, f.err
}

type fakePublisher struct {
	payloads []model.CreatePayload
	err      error
}

func (f *fakePublisher) Create(_ context.Context, payload model.CreatePayload) (model.Issue, error) {
	if f.err != nil {
		return model.Issue{}, f.err
	}
	f.payloads = append(f.payloads, payload)
	return model.Issue{ID: "new", Title: payload.Title}, nil
}

func newTestComposer(t *testing.T, drafter Drafter, publisher Publisher) *Composer {
	t.Helper()
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"secure_url":"https://res.example/1.png"}`))
	}))
	t.Cleanup(host.Close)

	uploader := NewUploader(&fakeSigner{sig: testSignature}, host.URL)
	locator := FixedLocator{Coordinates: &Coordinates{Lat: 12.5, Lng: 77.25}}
	return NewComposer(uploader, drafter, nil, locator, publisher, auth.StaticToken("tok"))
}

func TestGenerateFillsForm(t *testing.T) {
	drafter := &fakeDrafter{draft: model.Draft{Title: "Pothole on MG Road", Description: "Large pothole", Category: "roads", Confidence: 0.87}}
	c := newTestComposer(t, drafter, &fakePublisher{})

	if _, err := c.Locate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Form.Location != "Lat 12.50000, Lng 77.25000" {
		t.Errorf("expected coordinate location without a geocoder, got %q", c.Form.Location)
	}

	if err := c.Generate(context.Background(), pngImage(512)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Step != StepReview {
		t.Errorf("expected review step, got %s", c.Step)
	}
	if c.Form.Title != "Pothole on MG Road" || c.Form.Category != "roads" || c.Form.Confidence == nil || *c.Form.Confidence != 0.87 {
		t.Errorf("unexpected form %+v", c.Form)
	}
	if drafter.req.ImageURL != "https://res.example/1.png" || drafter.req.Location != c.Form.Location {
		t.Errorf("unexpected draft request %+v", drafter.req)
	}
	if c.MapURL() != "https://maps.google.com/?q=12.5,77.25" {
		t.Errorf("unexpected map url %q", c.MapURL())
	}
}

func TestDraftFailureKeepsManualText(t *testing.T) {
	publisher := &fakePublisher{}
	c := newTestComposer(t, &fakeDrafter{err: errors.New("AI unavailable")}, publisher)
	c.Form.Title = "My title"
	c.Form.Description = "My description"
	c.Form.Location = "MG Road"

	if err := c.Generate(context.Background(), pngImage(512)); err != nil {
		t.Fatalf("draft failure must not fail the flow: %v", err)
	}
	if c.DraftErr == nil {
		t.Errorf("expected draft error to be recorded")
	}
	if c.Form.Title != "My title" || c.Form.Description != "My description" {
		t.Errorf("expected manual text to survive, got %+v", c.Form)
	}

	created, err := c.Publish(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "new" || len(publisher.payloads) != 1 {
		t.Fatalf("expected one publish, got %+v", publisher.payloads)
	}
	if p := publisher.payloads[0]; p.Image != "https://res.example/1.png" || p.Location != "MG Road" || p.AIConfidence != nil {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestGenerateRequirements(t *testing.T) {
	c := newTestComposer(t, &fakeDrafter{}, &fakePublisher{})
	if err := c.Generate(context.Background(), pngImage(512)); !errors.Is(err, ErrCannotGenerate) {
		t.Errorf("expected ErrCannotGenerate without location, got %v", err)
	}

	c.Form.Location = "MG Road"
	c.tokens = auth.StaticToken("")
	if err := c.Generate(context.Background(), pngImage(512)); !errors.Is(err, ErrCannotGenerate) {
		t.Errorf("expected ErrCannotGenerate when signed out, got %v", err)
	}
}

func TestUploadSkipsDraft(t *testing.T) {
	drafter := &fakeDrafter{draft: model.Draft{Title: "unused"}}
	c := newTestComposer(t, drafter, &fakePublisher{})
	c.Form.Title = "Broken streetlight"

	imageURL, err := c.Upload(context.Background(), pngImage(512))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imageURL != "https://res.example/1.png" || c.Form.ImageURL != imageURL {
		t.Errorf("unexpected image url %q, form %q", imageURL, c.Form.ImageURL)
	}
	if c.Step != StepReview {
		t.Errorf("expected review step, got %s", c.Step)
	}
	if drafter.req.ImageURL != "" || c.Form.Title != "Broken streetlight" {
		t.Errorf("expected no draft, got request %+v and title %q", drafter.req, c.Form.Title)
	}

	c.tokens = auth.StaticToken("")
	if _, err := c.Upload(context.Background(), pngImage(512)); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("expected ErrNotSignedIn when signed out, got %v", err)
	}
}

func TestPublishValidatesBeforeCreating(t *testing.T) {
	publisher := &fakePublisher{}
	c := newTestComposer(t, &fakeDrafter{}, publisher)
	c.Form = Form{Title: "ok title", Description: "long enough", Location: "MG Road"}

	var verr *ValidationError
	if _, err := c.Publish(context.Background()); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
	if len(publisher.payloads) != 0 {
		t.Errorf("expected nothing to be published")
	}
}
