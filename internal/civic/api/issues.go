package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/petr-muller/civicfeed/internal/civic/model"
)

func issuePath(id string, rest ...string) string {
	p := "/api/issues/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// ListIssues fetches the full issue feed
func (c *Client) ListIssues(ctx context.Context) ([]model.Issue, error) {
	var issues []model.Issue
	if err := c.Do(ctx, http.MethodGet, "/api/issues", nil, "", &issues); err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

// CreateIssue publishes a new issue and returns the canonical stored version
func (c *Client) CreateIssue(ctx context.Context, payload model.CreatePayload, token string) (model.Issue, error) {
	var created model.Issue
	if err := c.Do(ctx, http.MethodPost, "/api/issues", payload, token, &created); err != nil {
		return model.Issue{}, fmt.Errorf("failed to create issue: %w", err)
	}
	return created, nil
}

// LikeIssue likes an issue on behalf of the token owner. The store is
// idempotent per user. The result is nil when the store answers without a body.
func (c *Client) LikeIssue(ctx context.Context, id, token string) (*model.LikeResult, error) {
	var result *model.LikeResult
	if err := c.Do(ctx, http.MethodPost, issuePath(id, "like"), nil, token, &result); err != nil {
		return nil, fmt.Errorf("failed to like issue %s: %w", id, err)
	}
	return result, nil
}

// DeleteIssue removes an issue
func (c *Client) DeleteIssue(ctx context.Context, id, token string) error {
	var result model.DeleteResult
	if err := c.Do(ctx, http.MethodDelete, issuePath(id), nil, token, &result); err != nil {
		return fmt.Errorf("failed to delete issue %s: %w", id, err)
	}
	return nil
}

// ListComments fetches the comments of an issue
func (c *Client) ListComments(ctx context.Context, id string) ([]model.Comment, error) {
	var comments []model.Comment
	if err := c.Do(ctx, http.MethodGet, issuePath(id, "comments"), nil, "", &comments); err != nil {
		return nil, fmt.Errorf("failed to list comments of issue %s: %w", id, err)
	}
	for i := range comments {
		if comments[i].IssueID == "" {
			comments[i].IssueID = id
		}
	}
	return comments, nil
}

// AddComment posts a comment on an issue
func (c *Client) AddComment(ctx context.Context, id, text, token string) error {
	body := struct {
		Text string `json:"text"`
	}{Text: text}
	if err := c.Do(ctx, http.MethodPost, issuePath(id, "comments"), body, token, nil); err != nil {
		return fmt.Errorf("failed to comment on issue %s: %w", id, err)
	}
	return nil
}

// SignUpload obtains signed credentials for a direct image host upload
func (c *Client) SignUpload(ctx context.Context, token string) (model.UploadSignature, error) {
	var sig model.UploadSignature
	if err := c.Do(ctx, http.MethodPost, "/api/cloudinary/sign", nil, token, &sig); err != nil {
		return model.UploadSignature{}, fmt.Errorf("failed to get upload signature: %w", err)
	}
	return sig, nil
}

// DraftFromImage asks the backend to draft an issue from an uploaded image
func (c *Client) DraftFromImage(ctx context.Context, req model.DraftRequest, token string) (model.Draft, error) {
	var draft model.Draft
	if err := c.Do(ctx, http.MethodPost, "/api/ai/draft", req, token, &draft); err != nil {
		return model.Draft{}, fmt.Errorf("failed to draft issue: %w", err)
	}
	return draft, nil
}
