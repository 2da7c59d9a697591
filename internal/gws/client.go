package gws

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/spec-kit/identity-sync/internal/config"
	"github.com/spec-kit/identity-sync/internal/domain"
	"github.com/spec-kit/identity-sync/pkg/util"
)

const memberPageSize = 200

// Client reads group membership and user attributes from the Google
// Workspace Admin Directory and manages the synthetic enrollment group.
type Client struct {
	service       *admin.Service
	retryAttempts int
	retryDelay    time.Duration
	logger        *zap.Logger
}

// NewClient builds an Admin SDK client using domain-wide delegation: the
// service account key is impersonated as the super admin. The retry policy
// for transient failures comes from the sync configuration.
func NewClient(ctx context.Context, cfg config.SourceConfig, syncCfg config.SyncConfig, logger *zap.Logger) (*Client, error) {
	credentialsJSON, err := os.ReadFile(cfg.ServiceAccountKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(
		credentialsJSON,
		admin.AdminDirectoryUserScope,
		admin.AdminDirectoryGroupScope,
		admin.AdminDirectoryGroupMemberScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	jwtConfig.Subject = cfg.SuperAdminEmail

	service, err := admin.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create directory service: %w", err)
	}

	return &Client{
		service:       service,
		retryAttempts: syncCfg.RetryAttempts,
		retryDelay:    syncCfg.RetryDelay(),
		logger:        logger,
	}, nil
}

// ListGroupMembers returns the ids of all USER members of a group,
// following pagination until the continuation token is absent. A transport
// failure is returned as an error; an API refusal yields an empty slice so
// the pass continues with zero members for the group.
func (c *Client) ListGroupMembers(ctx context.Context, groupEmail string) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		call := c.service.Members.List(groupEmail).MaxResults(memberPageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *admin.Members
		err := util.Retry(ctx, c.retryAttempts, c.retryDelay, func() error {
			var doErr error
			resp, doErr = call.Do()
			return classify("gws.list_members", doErr)
		})
		if err != nil {
			if util.IsTransport(err) || util.IsAuth(err) {
				return nil, err
			}
			c.logger.Error("member listing refused, continuing with zero members",
				zap.String("group", groupEmail), zap.Error(err))
			return nil, nil
		}

		for _, member := range resp.Members {
			if member.Type != "USER" {
				c.logger.Debug("skipping non-user member",
					zap.String("group", groupEmail), zap.String("member", member.Email))
				continue
			}
			ids = append(ids, member.Id)
		}

		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetUser returns the user snapshot, or (nil, nil) when the user does not
// exist.
func (c *Client) GetUser(ctx context.Context, userID string) (*domain.SourceUser, error) {
	var user *admin.User
	err := util.Retry(ctx, c.retryAttempts, c.retryDelay, func() error {
		var doErr error
		user, doErr = c.service.Users.Get(userID).Context(ctx).Do()
		return classify("gws.get_user", doErr)
	})
	if err != nil {
		if util.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	snapshot := &domain.SourceUser{
		ID:        user.Id,
		Email:     user.PrimaryEmail,
		Suspended: user.Suspended,
	}
	if user.Name != nil {
		snapshot.GivenName = user.Name.GivenName
		snapshot.FamilyName = user.Name.FamilyName
	}
	return snapshot, nil
}

// HasGroup reports whether a group exists.
func (c *Client) HasGroup(ctx context.Context, groupEmail string) (bool, error) {
	err := util.Retry(ctx, c.retryAttempts, c.retryDelay, func() error {
		_, doErr := c.service.Groups.Get(groupEmail).Context(ctx).Do()
		return classify("gws.get_group", doErr)
	})
	if err != nil {
		if util.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateGroup creates a group; creating a group that already exists
// succeeds without mutation.
func (c *Client) CreateGroup(ctx context.Context, groupEmail, groupName string) error {
	group := &admin.Group{
		Email:       groupEmail,
		Name:        groupName,
		Description: "Users with an active credential, maintained by identity-sync",
	}
	err := util.Retry(ctx, c.retryAttempts, c.retryDelay, func() error {
		_, doErr := c.service.Groups.Insert(group).Context(ctx).Do()
		return classify("gws.create_group", doErr)
	})
	if util.IsConflict(err) {
		return nil
	}
	return err
}

// SetEnrollmentMembership adds or removes a user from the enrollment group.
// Adding a present member and removing an absent one are no-op successes.
func (c *Client) SetEnrollmentMembership(ctx context.Context, groupEmail, userEmail string, member bool) error {
	if member {
		body := &admin.Member{Email: userEmail, Role: "MEMBER", Type: "USER"}
		err := util.Retry(ctx, c.retryAttempts, c.retryDelay, func() error {
			_, doErr := c.service.Members.Insert(groupEmail, body).Context(ctx).Do()
			return classify("gws.insert_member", doErr)
		})
		if util.IsConflict(err) {
			return nil
		}
		return err
	}

	err := util.Retry(ctx, c.retryAttempts, c.retryDelay, func() error {
		doErr := c.service.Members.Delete(groupEmail, userEmail).Context(ctx).Do()
		return classify("gws.delete_member", doErr)
	})
	if util.IsNotFound(err) {
		return nil
	}
	return err
}

// classify maps a googleapi error to the structured taxonomy. Transport
// failures have no *googleapi.Error; API failures are classified by status
// code, never by message text.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch kind := util.ClassifyStatus(apiErr.Code); kind {
		case util.KindNotFound:
			return util.NewNotFound(op, fmt.Sprintf("http %d", apiErr.Code))
		case util.KindConflict:
			return util.NewConflict(op, fmt.Sprintf("http %d", apiErr.Code))
		case util.KindAuth:
			return util.NewAuth(op, err)
		case util.KindTransport:
			return util.NewTransport(op, err)
		default:
			return util.NewOpError(util.KindInternal, op, fmt.Sprintf("http %d", apiErr.Code), err)
		}
	}
	return util.NewTransport(op, err)
}
