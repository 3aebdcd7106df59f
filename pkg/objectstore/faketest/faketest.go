// Package faketest provides an in-memory objectstore.Client used by tracker
// and orchestrator unit tests, so they exercise real claim/lease/copy/delete
// semantics without a live Azure Storage account.
package faketest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blobtailer/blobtailer/pkg/objectstore"
)

type fakeBlob struct {
	name         string
	data         []byte
	lastModified time.Time
	tags         map[string]string

	leaseToken   string // empty when not leased
	leaseExpires time.Time
}

// Client is an in-memory objectstore.Client. Safe for concurrent use.
type Client struct {
	mu         sync.Mutex
	containers map[string]map[string]*fakeBlob // container -> name -> blob
	now        func() time.Time
}

var _ objectstore.Client = (*Client)(nil)

// New returns an empty fake client. now defaults to time.Now if nil, and can
// be overridden in tests that need to simulate lease expiry.
func New(now func() time.Time) *Client {
	if now == nil {
		now = time.Now
	}
	return &Client{containers: make(map[string]map[string]*fakeBlob), now: now}
}

// PutBlob seeds a blob's bytes and optional tags, creating its container if
// necessary. Intended for test setup, not part of objectstore.Client.
func (c *Client) PutBlob(container, name string, data []byte, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.containers[container] == nil {
		c.containers[container] = make(map[string]*fakeBlob)
	}
	tagsCopy := make(map[string]string, len(tags))
	for k, v := range tags {
		tagsCopy[k] = v
	}
	c.containers[container][name] = &fakeBlob{
		name:         name,
		data:         data,
		lastModified: c.now(),
		tags:         tagsCopy,
	}
}

func (c *Client) blob(container, name string) *fakeBlob {
	m, ok := c.containers[container]
	if !ok {
		return nil
	}
	return m[name]
}

// ListPage implements objectstore.Client.
func (c *Client) ListPage(ctx context.Context, opts objectstore.ListOptions) (objectstore.Page, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.Page{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0)
	for name := range c.containers[opts.Container] {
		if opts.Prefix != "" && !strings.HasPrefix(name, opts.Prefix) {
			continue
		}
		if opts.Marker != "" && name <= opts.Marker {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	pageSize := int(opts.PageSize)
	if pageSize <= 0 || pageSize > len(names) {
		pageSize = len(names)
	}

	page := objectstore.Page{}
	for i := 0; i < pageSize; i++ {
		b := c.containers[opts.Container][names[i]]
		info := objectstore.BlobInfo{
			Name:         b.name,
			Container:    opts.Container,
			Size:         int64(len(b.data)),
			LastModified: b.lastModified,
		}
		if opts.IncludeTags {
			tagsCopy := make(map[string]string, len(b.tags))
			for k, v := range b.tags {
				tagsCopy[k] = v
			}
			info.Tags = tagsCopy
		}
		page.Blobs = append(page.Blobs, info)
	}
	if pageSize < len(names) {
		page.NextMarker = names[pageSize-1]
		page.HasNextMarker = true
	}
	return page, nil
}

// OpenReader implements objectstore.Client.
func (c *Client) OpenReader(ctx context.Context, container, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.blob(container, name)
	if b == nil {
		return nil, objectstore.NewNotFoundError(container, name)
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// Exists implements objectstore.Client.
func (c *Client) Exists(ctx context.Context, container, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.blob(container, name) != nil, nil
}

// GetTags implements objectstore.Client.
func (c *Client) GetTags(ctx context.Context, container, name string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.blob(container, name)
	if b == nil {
		return nil, objectstore.NewNotFoundError(container, name)
	}
	out := make(map[string]string, len(b.tags))
	for k, v := range b.tags {
		out[k] = v
	}
	return out, nil
}

// SetTags implements objectstore.Client.
func (c *Client) SetTags(ctx context.Context, container, name string, tags map[string]string, leaseToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.blob(container, name)
	if b == nil {
		return objectstore.NewNotFoundError(container, name)
	}
	if leaseToken != "" && !c.leaseValidLocked(b, leaseToken) {
		return objectstore.NewConflictError(container, name, "lease token precondition not met")
	}
	if len(tags) > 10 {
		return fmt.Errorf("objectstore/faketest: too many tags (%d > 10)", len(tags))
	}
	tagsCopy := make(map[string]string, len(tags))
	for k, v := range tags {
		tagsCopy[k] = v
	}
	b.tags = tagsCopy
	return nil
}

// CopyBlob implements objectstore.Client.
func (c *Client) CopyBlob(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	src := c.blob(srcContainer, srcName)
	if src == nil {
		return objectstore.NewNotFoundError(srcContainer, srcName)
	}
	if c.containers[dstContainer] == nil {
		c.containers[dstContainer] = make(map[string]*fakeBlob)
	}
	dataCopy := make([]byte, len(src.data))
	copy(dataCopy, src.data)
	tagsCopy := make(map[string]string, len(src.tags))
	for k, v := range src.tags {
		tagsCopy[k] = v
	}
	c.containers[dstContainer][dstName] = &fakeBlob{
		name:         dstName,
		data:         dataCopy,
		lastModified: c.now(),
		tags:         tagsCopy,
	}
	return nil
}

// DeleteBlob implements objectstore.Client.
func (c *Client) DeleteBlob(ctx context.Context, container, name, leaseToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.blob(container, name)
	if b == nil {
		return objectstore.NewNotFoundError(container, name)
	}
	if leaseToken != "" && !c.leaseValidLocked(b, leaseToken) {
		return objectstore.NewConflictError(container, name, "lease token precondition not met")
	}
	delete(c.containers[container], name)
	return nil
}

// AcquireLease implements objectstore.Client.
func (c *Client) AcquireLease(ctx context.Context, container, name string, duration time.Duration) (objectstore.LeaseHandle, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.LeaseHandle{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.blob(container, name)
	if b == nil {
		return objectstore.LeaseHandle{}, objectstore.NewNotFoundError(container, name)
	}

	now := c.now()
	if b.leaseToken != "" && b.leaseExpires.After(now) {
		return objectstore.LeaseHandle{}, objectstore.NewConflictError(container, name, "lease already held")
	}

	token := uuid.NewString()
	b.leaseToken = token
	b.leaseExpires = now.Add(duration)
	return objectstore.LeaseHandle{Token: token, Container: container, Name: name}, nil
}

// RenewLease implements objectstore.Client.
func (c *Client) RenewLease(ctx context.Context, h objectstore.LeaseHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.blob(h.Container, h.Name)
	if b == nil {
		return objectstore.NewNotFoundError(h.Container, h.Name)
	}
	if !c.leaseValidLocked(b, h.Token) {
		return objectstore.NewLeaseNotHeldError(h.Container, h.Name)
	}
	// Renewal duration is fixed at 30s in the fake; real duration bookkeeping
	// lives in the caller's lease.Manager.
	b.leaseExpires = c.now().Add(30 * time.Second)
	return nil
}

// ReleaseLease implements objectstore.Client.
func (c *Client) ReleaseLease(ctx context.Context, h objectstore.LeaseHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.blob(h.Container, h.Name)
	if b == nil {
		// Deleted blobs implicitly release their lease; swallow as success.
		return nil
	}
	if !c.leaseValidLocked(b, h.Token) {
		return nil
	}
	b.leaseToken = ""
	b.leaseExpires = time.Time{}
	return nil
}

func (c *Client) leaseValidLocked(b *fakeBlob, token string) bool {
	return b.leaseToken != "" && b.leaseToken == token && b.leaseExpires.After(c.now())
}

// ExpireLease forces a held lease to expire immediately, used by tests that
// simulate a crashed owner (S4 in the spec's end-to-end scenarios).
func (c *Client) ExpireLease(container, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b := c.blob(container, name); b != nil {
		b.leaseExpires = c.now().Add(-time.Second)
	}
}
