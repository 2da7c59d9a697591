package scim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/config"
	"github.com/spec-kit/identity-sync/internal/domain"
	"github.com/spec-kit/identity-sync/pkg/util"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(config.TargetConfig{
		APIToken:     "test-token",
		SCIMBaseURL:  server.URL + "/scim/v2",
		NativeAPIURL: server.URL + "/v2",
	}, config.SyncConfig{RetryAttempts: 1}, zap.NewNop())
	return client, server
}

func TestListUsersFollowsPagination(t *testing.T) {
	pageOne := userListResponse{
		TotalResults: 3,
		StartIndex:   1,
		Resources: []scimUser{
			{ID: "t1", ExternalID: "s1", UserName: "u1@corp.test", Active: true},
			{ID: "t2", ExternalID: "s2", UserName: "u2@corp.test", Active: true},
		},
	}
	pageTwo := userListResponse{
		TotalResults: 3,
		StartIndex:   3,
		Resources: []scimUser{
			{ID: "t3", UserName: "manual@corp.test", Active: false,
				Groups: []scimGroupRef{{Value: "g1", Display: "GoogleSCIM_eng@corp.test"}}},
		},
	}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Query().Get("startIndex") {
		case "1":
			_ = json.NewEncoder(w).Encode(pageOne)
		case "3":
			_ = json.NewEncoder(w).Encode(pageTwo)
		default:
			t.Errorf("unexpected startIndex %q", r.URL.Query().Get("startIndex"))
		}
	}))

	users, err := client.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3", len(users))
	}
	if users[2].ExternalID != "" || users[2].Active {
		t.Errorf("third user = %+v", users[2])
	}
	if len(users[2].Groups) != 1 || users[2].Groups[0].Display != "GoogleSCIM_eng@corp.test" {
		t.Errorf("group refs = %+v", users[2].Groups)
	}
}

func TestFindUserByExternalIDAbsentIsNilNil(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(userListResponse{TotalResults: 0})
	}))

	user, err := client.FindUserByExternalID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindUserByExternalID: %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
}

func TestCreateUserSendsSnapshot(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/scim/v2/Users" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body scimUser
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.ExternalID != "100000000000000000001" || body.UserName != "u1@corp.test" || !body.Active {
			t.Errorf("request body = %+v", body)
		}
		body.ID = "t1"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	}))

	created, err := client.CreateUser(context.Background(), &domain.SourceUser{
		ID:         "100000000000000000001",
		Email:      "u1@corp.test",
		GivenName:  "Test",
		FamilyName: "User",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID != "t1" || created.ExternalID != "100000000000000000001" {
		t.Errorf("created = %+v", created)
	}
}

func TestSetUserActiveOnMissingUserIsSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Resource t9 not found"})
	}))

	if err := client.SetUserActive(context.Background(), "t9", false); err != nil {
		t.Errorf("suspending a deleted user should succeed, got %v", err)
	}
}

func TestSetUserActiveSkipsWriteWhenConverged(t *testing.T) {
	var puts int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			puts++
		}
		_ = json.NewEncoder(w).Encode(scimUser{ID: "t1", UserName: "u1@corp.test", Active: false})
	}))

	if err := client.SetUserActive(context.Background(), "t1", false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if puts != 0 {
		t.Errorf("issued %d PUTs for an already inactive user, want 0", puts)
	}
}

func TestRemoveGroupMemberAbsentIsSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := client.RemoveGroupMember(context.Background(), "g1", "t1"); err != nil {
		t.Errorf("removing an absent member should succeed, got %v", err)
	}
}

func TestAddGroupMemberPatchShape(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body patchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Operations) != 1 || body.Operations[0].Op != "add" || body.Operations[0].Path != "members" {
			t.Errorf("patch = %+v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.AddGroupMember(context.Background(), "g1", "t1"); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}
}

func TestEnrollmentStatusUnknownUserIsNotEnrolled(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	enrolled, err := client.EnrollmentStatus(context.Background(), "dryrun-user:s1")
	if err != nil {
		t.Fatalf("EnrollmentStatus: %v", err)
	}
	if enrolled {
		t.Error("unknown user reported as enrolled")
	}
}

func TestEnrollmentStatusReadsNativeAPI(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/users/t1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"id":"t1","username":"u1@corp.test","has_active_passkey":true}`)
	}))

	enrolled, err := client.EnrollmentStatus(context.Background(), "t1")
	if err != nil {
		t.Fatalf("EnrollmentStatus: %v", err)
	}
	if !enrolled {
		t.Error("enrolled user reported as not enrolled")
	}
}

func TestAuthFailureClassified(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.ListUsers(context.Background())
	if !util.IsAuth(err) {
		t.Errorf("err = %v, want auth kind", err)
	}
}

func TestConfiguredRetryAttemptsHonored(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := NewClient(config.TargetConfig{
		APIToken:     "test-token",
		SCIMBaseURL:  server.URL + "/scim/v2",
		NativeAPIURL: server.URL + "/v2",
	}, config.SyncConfig{RetryAttempts: 4, RetryDelaySeconds: 0}, zap.NewNop())

	_, err := client.ListUsers(context.Background())
	if !util.IsTransport(err) {
		t.Fatalf("err = %v, want transport", err)
	}
	if requests != 4 {
		t.Errorf("server saw %d requests, want the configured 4 attempts", requests)
	}
}

func TestConflictCreateClassified(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "userName already exists"})
	}))

	_, err := client.CreateUser(context.Background(), &domain.SourceUser{ID: "s1", Email: "u1@corp.test"})
	if !util.IsConflict(err) {
		t.Errorf("err = %v, want conflict kind", err)
	}
}
