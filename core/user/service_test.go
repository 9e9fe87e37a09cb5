package user_test

import (
	"errors"
	"testing"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/user"
	dummydb "github.com/insightlab/insightlab/storage/database/dummy"
)

func setup(t *testing.T) *user.Service {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() error = %v", err)
	}
	return user.NewService(dummydb.NewUserRepository(db))
}

func TestService_Create(t *testing.T) {
	svc := setup(t)

	usr, err := svc.Create(user.NewUser{
		Name:            "Jane Doe",
		Username:        "jane42",
		Email:           "jane@test.cd",
		Password:        "LanguagesRock!",
		PasswordConfirm: "LanguagesRock!",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if usr.Role != user.RoleParticipant {
		t.Errorf("Role = %s, want default %s", usr.Role, user.RoleParticipant)
	}
	if !usr.IsActive {
		t.Error("new user is not active")
	}
	if err = usr.CheckPassword("LanguagesRock!"); err != nil {
		t.Errorf("CheckPassword() error = %v", err)
	}
}

func TestService_CheckUniqueness(t *testing.T) {
	svc := setup(t)

	if _, err := svc.Create(user.NewUser{
		Name: "Jane Doe", Username: "jane42", Email: "jane@test.cd",
		Password: "mdr123", PasswordConfirm: "mdr123",
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name      string
		username  string
		email     string
		wantField string
	}{
		{name: "available", username: "other1", email: "other@test.cd"},
		{name: "username taken", username: "jane42", email: "other@test.cd", wantField: "username"},
		{name: "email taken", username: "other1", email: "jane@test.cd", wantField: "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(tt.username, tt.email)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("CheckUniqueness() error = %v, want nil", err)
				}
				return
			}
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("CheckUniqueness() error = %T, want *core.ValidationError", err)
			}
			if len(vErr.Fields) != 1 || vErr.Fields[0].Field != tt.wantField {
				t.Errorf("fields = %v, want one error on %q", vErr.Fields, tt.wantField)
			}
		})
	}
}

func TestService_Update_partial(t *testing.T) {
	svc := setup(t)

	usr, err := svc.Create(user.NewUser{
		Name: "Jane Doe", Username: "jane42", Email: "jane@test.cd",
		Password: "mdr123", PasswordConfirm: "mdr123",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// only set fields are written; the rest is preserved
	updated, err := svc.Update(usr.ID, user.UpdateUser{Name: "Jane D."})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "Jane D." {
		t.Errorf("Name = %s, want Jane D.", updated.Name)
	}
	if updated.Username != "jane42" || updated.Email != "jane@test.cd" || updated.Role != user.RoleParticipant {
		t.Errorf("unset fields were overwritten: %+v", updated)
	}
	if err = updated.CheckPassword("mdr123"); err != nil {
		t.Errorf("password was overwritten: %v", err)
	}

	isActive := false
	if updated, err = svc.Update(usr.ID, user.UpdateUser{IsActive: &isActive}); err != nil {
		t.Fatalf("Update(isActive) error = %v", err)
	}
	if updated.IsActive {
		t.Error("IsActive not updated")
	}
}

func TestService_Delete(t *testing.T) {
	svc := setup(t)

	usr, err := svc.Create(user.NewUser{
		Name: "Jane Doe", Email: "jane@test.cd",
		Password: "mdr123", PasswordConfirm: "mdr123",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err = svc.Delete(usr.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err = svc.GetByID(usr.ID); !errors.Is(err, user.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}
