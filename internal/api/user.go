package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	userPath       = "/get-user/"
	categoriesPath = "/categories/"
)

// User is the signed-in account.
type User struct {
	req Requester
}

// Name returns the username of the session's account.
func (u *User) Name(ctx context.Context) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	if err := u.req.DoJSON(ctx, http.MethodGet, userPath, nil, nil, &out); err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if out.Username == "" {
		return "", errors.New("get user: response carried no username")
	}
	return out.Username, nil
}

// Categories lists the category names the backend knows.
type Categories struct {
	req Requester
}

func (c *Categories) List(ctx context.Context) ([]string, error) {
	var out struct {
		Categories []string `json:"categories"`
	}
	if err := c.req.DoJSON(ctx, http.MethodGet, categoriesPath, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out.Categories, nil
}
