package main

import (
	"time"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/user"
)

// resetPassword sets a new password for an existing user.
func (cli *commandLine) resetPassword(uname, pwd string) error {
	uname = core.CleanString(uname, true /* lower */)

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(uname)
	if err != nil {
		return err
	}

	update := user.User{ID: usr.ID, UpdatedAt: time.Now().UTC()}
	if err = update.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(update, nil)
	return err
}
