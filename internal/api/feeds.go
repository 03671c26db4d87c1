package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Feed resources understood by ListPage.
const (
	ResourcePosts  = "posts"
	ResourceAuthor = "author"
	ResourceClan   = "clan"
	ResourceSearch = "search"
)

// FeedPath returns the list endpoint for a resource.
//
//	posts   /posts
//	author  /authors/{id}/posts
//	clan    /clans/{id}/posts
//	search  /search
func FeedPath(resource, id string) (string, error) {
	switch resource {
	case ResourcePosts, ResourceSearch:
		return "/" + resource, nil
	case ResourceAuthor, ResourceClan:
		if id == "" {
			return "", fmt.Errorf("%s feed requires an id", resource)
		}
		return "/" + resource + "s/" + url.PathEscape(id) + "/posts", nil
	default:
		return "", fmt.Errorf("unknown feed resource %q", resource)
	}
}

// ListPage fetches one page of a feed and returns the raw payload.
// Pages are 1-based; query carries filters such as category or q.
func (c *Client) ListPage(ctx context.Context, resource, id string, query url.Values, page, limit int) ([]byte, error) {
	path, err := FeedPath(resource, id)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	resp, err := c.Get(ctx, path, q)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Like records a like for a post.
func (c *Client) Like(ctx context.Context, id string) error {
	_, err := c.Post(ctx, "/posts/"+url.PathEscape(id)+"/like")
	return err
}

// RecordView records a view for a post.
func (c *Client) RecordView(ctx context.Context, id string) error {
	_, err := c.Post(ctx, "/posts/"+url.PathEscape(id)+"/view")
	return err
}
