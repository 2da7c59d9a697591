package scim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/config"
	"github.com/spec-kit/identity-sync/internal/domain"
	"github.com/spec-kit/identity-sync/pkg/util"
)

const (
	userSchema  = "urn:ietf:params:scim:schemas:core:2.0:User"
	groupSchema = "urn:ietf:params:scim:schemas:core:2.0:Group"
	patchSchema = "urn:ietf:params:scim:api:messages:2.0:PatchOp"

	listPageSize = 100
)

// Client talks to the target identity system: SCIM 2.0 for user/group CRUD
// and the native API for enrollment status.
type Client struct {
	apiToken      string
	scimBaseURL   string
	nativeAPIURL  string
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
	logger        *zap.Logger
}

// NewClient creates a target directory client. The retry policy for
// transient failures comes from the sync configuration.
func NewClient(cfg config.TargetConfig, syncCfg config.SyncConfig, logger *zap.Logger) *Client {
	return &Client{
		apiToken:      cfg.APIToken,
		scimBaseURL:   strings.TrimSuffix(cfg.SCIMBaseURL, "/"),
		nativeAPIURL:  strings.TrimSuffix(cfg.NativeAPIURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		retryAttempts: syncCfg.RetryAttempts,
		retryDelay:    syncCfg.RetryDelay(),
		logger:        logger,
	}
}

type scimName struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

type scimGroupRef struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

type scimUser struct {
	Schemas    []string       `json:"schemas,omitempty"`
	ID         string         `json:"id,omitempty"`
	ExternalID string         `json:"externalId,omitempty"`
	UserName   string         `json:"userName"`
	Name       scimName       `json:"name"`
	Active     bool           `json:"active"`
	Groups     []scimGroupRef `json:"groups,omitempty"`
}

type scimMember struct {
	Value string `json:"value"`
}

type scimGroup struct {
	Schemas     []string     `json:"schemas,omitempty"`
	ID          string       `json:"id,omitempty"`
	DisplayName string       `json:"displayName"`
	Members     []scimMember `json:"members,omitempty"`
}

type userListResponse struct {
	TotalResults int        `json:"totalResults"`
	StartIndex   int        `json:"startIndex"`
	Resources    []scimUser `json:"Resources"`
}

type groupListResponse struct {
	TotalResults int         `json:"totalResults"`
	Resources    []scimGroup `json:"Resources"`
}

type patchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

type patchRequest struct {
	Schemas    []string         `json:"schemas"`
	Operations []patchOperation `json:"Operations"`
}

// ListUsers returns every user in the target system, following SCIM list
// pagination until all resources are collected.
func (c *Client) ListUsers(ctx context.Context) ([]*domain.TargetUser, error) {
	var users []*domain.TargetUser
	startIndex := 1

	for {
		requestURL := fmt.Sprintf("%s/Users?startIndex=%d&count=%d", c.scimBaseURL, startIndex, listPageSize)
		var page userListResponse
		if err := c.getJSON(ctx, "scim.list_users", requestURL, &page); err != nil {
			return nil, err
		}

		for i := range page.Resources {
			users = append(users, toTargetUser(&page.Resources[i]))
		}

		if len(page.Resources) == 0 || len(users) >= page.TotalResults {
			return users, nil
		}
		startIndex += len(page.Resources)
	}
}

// FindGroupByDisplayName looks up a group by its derived display name,
// returning (nil, nil) when absent.
func (c *Client) FindGroupByDisplayName(ctx context.Context, name string) (*domain.TargetGroup, error) {
	filter := fmt.Sprintf(`displayName eq %q`, name)
	requestURL := fmt.Sprintf("%s/Groups?filter=%s", c.scimBaseURL, url.QueryEscape(filter))

	var result groupListResponse
	if err := c.getJSON(ctx, "scim.find_group", requestURL, &result); err != nil {
		return nil, err
	}
	if result.TotalResults == 0 || len(result.Resources) == 0 {
		return nil, nil
	}
	g := result.Resources[0]
	return &domain.TargetGroup{ID: g.ID, DisplayName: g.DisplayName}, nil
}

// CreateGroup creates a group keyed by display name.
func (c *Client) CreateGroup(ctx context.Context, name string) (*domain.TargetGroup, error) {
	body := scimGroup{
		Schemas:     []string{groupSchema},
		DisplayName: name,
		Members:     []scimMember{},
	}

	var created scimGroup
	if err := c.doJSON(ctx, "scim.create_group", http.MethodPost, c.scimBaseURL+"/Groups", body, &created); err != nil {
		return nil, err
	}
	return &domain.TargetGroup{ID: created.ID, DisplayName: created.DisplayName}, nil
}

// FindUserByExternalID looks up a user by the source join key, returning
// (nil, nil) when absent.
func (c *Client) FindUserByExternalID(ctx context.Context, externalID string) (*domain.TargetUser, error) {
	filter := fmt.Sprintf(`externalId eq %q`, externalID)
	requestURL := fmt.Sprintf("%s/Users?filter=%s", c.scimBaseURL, url.QueryEscape(filter))

	var result userListResponse
	if err := c.getJSON(ctx, "scim.find_user", requestURL, &result); err != nil {
		return nil, err
	}
	if result.TotalResults == 0 || len(result.Resources) == 0 {
		return nil, nil
	}
	return toTargetUser(&result.Resources[0]), nil
}

// CreateUser provisions a target user from a source snapshot.
func (c *Client) CreateUser(ctx context.Context, user *domain.SourceUser) (*domain.TargetUser, error) {
	body := scimUser{
		Schemas:    []string{userSchema},
		ExternalID: user.ID,
		UserName:   user.Email,
		Name:       scimName{GivenName: user.GivenName, FamilyName: user.FamilyName},
		Active:     !user.Suspended,
	}

	var created scimUser
	if err := c.doJSON(ctx, "scim.create_user", http.MethodPost, c.scimBaseURL+"/Users", body, &created); err != nil {
		return nil, err
	}
	return toTargetUser(&created), nil
}

// UpdateUser replaces the target user resource with the source snapshot.
func (c *Client) UpdateUser(ctx context.Context, targetID string, user *domain.SourceUser) error {
	body := scimUser{
		Schemas:    []string{userSchema},
		ExternalID: user.ID,
		UserName:   user.Email,
		Name:       scimName{GivenName: user.GivenName, FamilyName: user.FamilyName},
		Active:     !user.Suspended,
	}
	return c.doJSON(ctx, "scim.update_user", http.MethodPut, c.scimBaseURL+"/Users/"+targetID, body, nil)
}

// SetUserActive flips the active flag via a full-resource replace.
// Suspending a user that no longer exists is a success, not an error.
func (c *Client) SetUserActive(ctx context.Context, targetID string, active bool) error {
	var current scimUser
	err := c.getJSON(ctx, "scim.get_user", c.scimBaseURL+"/Users/"+targetID, &current)
	if err != nil {
		if util.IsNotFound(err) && !active {
			return nil
		}
		return err
	}
	if current.Active == active {
		return nil
	}

	current.Active = active
	current.Schemas = []string{userSchema}
	current.Groups = nil
	err = c.doJSON(ctx, "scim.set_user_active", http.MethodPut, c.scimBaseURL+"/Users/"+targetID, current, nil)
	if util.IsNotFound(err) && !active {
		return nil
	}
	return err
}

// GroupMembers returns the member id set of a group.
func (c *Client) GroupMembers(ctx context.Context, groupID string) (map[string]struct{}, error) {
	var group scimGroup
	if err := c.getJSON(ctx, "scim.get_group", c.scimBaseURL+"/Groups/"+groupID, &group); err != nil {
		return nil, err
	}
	members := make(map[string]struct{}, len(group.Members))
	for _, m := range group.Members {
		members[m.Value] = struct{}{}
	}
	return members, nil
}

// AddGroupMember adds a user to a group; adding an existing member
// succeeds without mutation.
func (c *Client) AddGroupMember(ctx context.Context, groupID, targetID string) error {
	patch := patchRequest{
		Schemas: []string{patchSchema},
		Operations: []patchOperation{{
			Op:    "add",
			Path:  "members",
			Value: []scimMember{{Value: targetID}},
		}},
	}
	err := c.doJSON(ctx, "scim.add_member", http.MethodPatch, c.scimBaseURL+"/Groups/"+groupID, patch, nil)
	if util.IsConflict(err) {
		return nil
	}
	return err
}

// RemoveGroupMember removes a user from a group; removing an absent member
// succeeds without mutation.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, targetID string) error {
	patch := patchRequest{
		Schemas: []string{patchSchema},
		Operations: []patchOperation{{
			Op:   "remove",
			Path: fmt.Sprintf("members[value eq %q]", targetID),
		}},
	}
	err := c.doJSON(ctx, "scim.remove_member", http.MethodPatch, c.scimBaseURL+"/Groups/"+groupID, patch, nil)
	if util.IsNotFound(err) {
		return nil
	}
	return err
}

// EnrollmentStatus queries the native API for an active credential. The
// subsystem does not track unmanaged users, so an unknown id reads as not
// enrolled.
func (c *Client) EnrollmentStatus(ctx context.Context, targetID string) (bool, error) {
	var result struct {
		ID               string `json:"id"`
		Username         string `json:"username"`
		HasActivePasskey bool   `json:"has_active_passkey"`
	}
	err := c.getNativeJSON(ctx, "native.get_user", c.nativeAPIURL+"/users/"+targetID, &result)
	if err != nil {
		if util.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return result.HasActivePasskey, nil
}

func toTargetUser(u *scimUser) *domain.TargetUser {
	target := &domain.TargetUser{
		ID:         u.ID,
		ExternalID: u.ExternalID,
		UserName:   u.UserName,
		GivenName:  u.Name.GivenName,
		FamilyName: u.Name.FamilyName,
		Active:     u.Active,
	}
	for _, g := range u.Groups {
		target.Groups = append(target.Groups, domain.GroupRef{ID: g.Value, Display: g.Display})
	}
	return target
}

func (c *Client) getJSON(ctx context.Context, op, requestURL string, out interface{}) error {
	return c.request(ctx, op, http.MethodGet, requestURL, nil, out, "application/scim+json")
}

func (c *Client) doJSON(ctx context.Context, op, method, requestURL string, body, out interface{}) error {
	return c.request(ctx, op, method, requestURL, body, out, "application/scim+json")
}

func (c *Client) getNativeJSON(ctx context.Context, op, requestURL string, out interface{}) error {
	return c.request(ctx, op, http.MethodGet, requestURL, nil, out, "application/json")
}

// request performs one HTTP call with auth headers, classifying failures by
// status code and retrying transient transport errors once.
func (c *Client) request(ctx context.Context, op, method, requestURL string, body, out interface{}, contentType string) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return util.NewOpError(util.KindInternal, op, "marshal request body", err)
		}
	}

	return util.Retry(ctx, c.retryAttempts, c.retryDelay, func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
		if err != nil {
			return util.NewOpError(util.KindInternal, op, "build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return util.NewTransport(op, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			detail := readErrorDetail(resp.Body)
			switch kind := util.ClassifyStatus(resp.StatusCode); kind {
			case util.KindNotFound:
				return util.NewNotFound(op, detail)
			case util.KindConflict:
				return util.NewConflict(op, detail)
			case util.KindAuth:
				return util.NewAuth(op, fmt.Errorf("http %d: %s", resp.StatusCode, detail))
			case util.KindTransport:
				return util.NewTransport(op, fmt.Errorf("http %d: %s", resp.StatusCode, detail))
			default:
				return util.NewOpError(util.KindInternal, op, fmt.Sprintf("http %d: %s", resp.StatusCode, detail), nil)
			}
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return util.NewMalformed(op, err)
		}
		return nil
	})
}

// readErrorDetail extracts the SCIM error detail when present.
func readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var scimErr struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &scimErr); err == nil && scimErr.Detail != "" {
		return scimErr.Detail
	}
	return strings.TrimSpace(string(raw))
}
