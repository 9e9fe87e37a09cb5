package main

import (
	"time"

	"github.com/pkg/errors"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	name = core.CleanString(name)
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	role := user.RoleParticipant
	if isAdmin {
		role = user.RoleAdmin
	}

	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return err
		}
		usr = user.User{
			Name:      name,
			Username:  uname,
			Email:     email,
			IsActive:  true,
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(usr)
		return err
	}

	usr.Name = name
	usr.Username = uname
	usr.Role = role
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	isActive := true
	_, err = cli.usrRepo.UpdateUser(usr, &isActive)
	return err
}
