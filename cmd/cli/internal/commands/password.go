package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/uabootstrap/internal/identity"
	"golang.org/x/crypto/bcrypt"
)

// HashPasswordCmd prints a bcrypt hash for the identity.users section of the config.
type HashPasswordCmd struct {
	Password string `help:"password to hash" required:"" env:"UABOOTSTRAP_PASSWORD"`
	Cost     int    `help:"bcrypt cost" default:"10"`
}

func (c *HashPasswordCmd) Run(ctx context.Context, globals *Globals) error {
	if c.Cost < bcrypt.MinCost || c.Cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := identity.HashPassword(c.Password, c.Cost)
	if err != nil {
		return err
	}

	fmt.Fprintln(globals.out(), hash)
	return nil
}
