// Package azure implements objectstore.Client against Azure Blob Storage
// using the modern github.com/Azure/azure-sdk-for-go/sdk/storage/azblob
// client family, paired with azcore for error classification and azidentity
// for credential resolution.
//
// The claim/conflict idiom (lease acquire, LeaseState-based conflict
// detection, lease token as a write precondition) is the same shape as the
// legacy Azure Event Hubs storage leaser, upgraded to the current SDK.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/lease"

	"github.com/blobtailer/blobtailer/pkg/objectstore"
)

// AuthMethod selects how the client authenticates against the storage
// account.
type AuthMethod string

const (
	AuthConnectionString  AuthMethod = "connection_string"
	AuthSharedKey         AuthMethod = "shared_key"
	AuthDefaultCredential AuthMethod = "default_credential"
)

// Config holds the connection parameters for the Azure implementation.
type Config struct {
	AuthMethod       AuthMethod
	AccountName      string
	AccountKey       string // required for AuthSharedKey
	ConnectionString string // required for AuthConnectionString
	ServiceURL       string // for AuthSharedKey / AuthDefaultCredential; empty means https://<account>.blob.core.windows.net/
}

// Client implements objectstore.Client against Azure Blob Storage.
type Client struct {
	inner       *azblob.Client
	accountName string
}

var _ objectstore.Client = (*Client)(nil)

// NewClient constructs a Client from cfg, resolving credentials per
// cfg.AuthMethod.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ServiceURL == "" {
		cfg.ServiceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}
	switch cfg.AuthMethod {
	case AuthConnectionString:
		inner, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("azure: connection string client: %w", err)
		}
		return &Client{inner: inner, accountName: cfg.AccountName}, nil

	case AuthSharedKey:
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("azure: shared key credential: %w", err)
		}
		inner, err := azblob.NewClientWithSharedKeyCredential(cfg.ServiceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure: shared key client: %w", err)
		}
		return &Client{inner: inner, accountName: cfg.AccountName}, nil

	case AuthDefaultCredential:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure: default credential: %w", err)
		}
		inner, err := azblob.NewClient(cfg.ServiceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure: client: %w", err)
		}
		return &Client{inner: inner, accountName: cfg.AccountName}, nil

	default:
		return nil, fmt.Errorf("azure: unknown auth method %q", cfg.AuthMethod)
	}
}

// ListPage lists one page of blobs, following the store's natural
// lexicographic order. It requests tags on the listing response so the
// tag-based tracker's filter can avoid a per-blob round trip.
func (c *Client) ListPage(ctx context.Context, opts objectstore.ListOptions) (objectstore.Page, error) {
	pagerOpts := &container.ListBlobsFlatOptions{
		Prefix: to.Ptr(opts.Prefix),
		Include: container.ListBlobsInclude{
			Tags: opts.IncludeTags,
		},
	}
	if opts.Marker != "" {
		pagerOpts.Marker = to.Ptr(opts.Marker)
	}
	if opts.PageSize > 0 {
		pagerOpts.MaxResults = to.Ptr(opts.PageSize)
	}

	pager := c.inner.NewListBlobsFlatPager(opts.Container, pagerOpts)
	if !pager.More() {
		return objectstore.Page{}, nil
	}

	resp, err := pager.NextPage(ctx)
	if err != nil {
		return objectstore.Page{}, translateErr(opts.Container, "", err)
	}

	page := objectstore.Page{}
	if resp.Segment != nil {
		for _, item := range resp.Segment.BlobItems {
			info := objectstore.BlobInfo{
				Container: opts.Container,
			}
			if item.Name != nil {
				info.Name = *item.Name
			}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					info.LastModified = *item.Properties.LastModified
				}
			}
			if opts.IncludeTags && item.BlobTags != nil {
				tags := make(map[string]string, len(item.BlobTags.BlobTagSet))
				for _, t := range item.BlobTags.BlobTagSet {
					if t.Key != nil && t.Value != nil {
						tags[*t.Key] = *t.Value
					}
				}
				info.Tags = tags
			}
			page.Blobs = append(page.Blobs, info)
		}
	}

	if resp.NextMarker != nil && *resp.NextMarker != "" {
		page.NextMarker = *resp.NextMarker
		page.HasNextMarker = true
	}

	return page, nil
}

// OpenReader opens a blob's bytes for sequential reading.
func (c *Client) OpenReader(ctx context.Context, containerName, name string) (io.ReadCloser, error) {
	resp, err := c.inner.DownloadStream(ctx, containerName, name, nil)
	if err != nil {
		return nil, translateErr(containerName, name, err)
	}
	return resp.Body, nil
}

// Exists reports whether a blob is present, used by the container-move
// tracker's per-blob existence probe against the archive container.
func (c *Client) Exists(ctx context.Context, containerName, name string) (bool, error) {
	blobClient := c.inner.ServiceClient().NewContainerClient(containerName).NewBlobClient(name)
	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if objectstore.IsNotFound(translateErr(containerName, name, err)) {
			return false, nil
		}
		return false, translateErr(containerName, name, err)
	}
	return true, nil
}

// GetTags reads the full index-tag set for a blob.
func (c *Client) GetTags(ctx context.Context, containerName, name string) (map[string]string, error) {
	blobClient := c.inner.ServiceClient().NewContainerClient(containerName).NewBlobClient(name)
	resp, err := blobClient.GetTags(ctx, nil)
	if err != nil {
		return nil, translateErr(containerName, name, err)
	}
	tags := make(map[string]string)
	if resp.BlobTagSet != nil {
		for _, t := range resp.BlobTagSet {
			if t.Key != nil && t.Value != nil {
				tags[*t.Key] = *t.Value
			}
		}
	}
	return tags, nil
}

// SetTags overwrites the index-tag set for a blob, conditioned on the lease
// token when non-empty.
func (c *Client) SetTags(ctx context.Context, containerName, name string, tags map[string]string, leaseToken string) error {
	blobClient := c.inner.ServiceClient().NewContainerClient(containerName).NewBlobClient(name)

	opts := &blob.SetTagsOptions{}
	if leaseToken != "" {
		opts.LeaseAccessConditions = &blob.LeaseAccessConditions{LeaseID: to.Ptr(leaseToken)}
	}

	_, err := blobClient.SetTags(ctx, tags, opts)
	if err != nil {
		return translateErr(containerName, name, err)
	}
	return nil
}

// CopyBlob performs a server-side copy and waits for completion, used by
// the container-move tracker to move a blob from incoming to archive/errors.
func (c *Client) CopyBlob(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	srcBlobClient := c.inner.ServiceClient().NewContainerClient(srcContainer).NewBlobClient(srcName)
	dstBlobClient := c.inner.ServiceClient().NewContainerClient(dstContainer).NewBlobClient(dstName)

	resp, err := dstBlobClient.StartCopyFromURL(ctx, srcBlobClient.URL(), nil)
	if err != nil {
		return translateErr(dstContainer, dstName, err)
	}

	status := blob.CopyStatusTypePending
	if resp.CopyStatus != nil {
		status = *resp.CopyStatus
	}

	for status == blob.CopyStatusTypePending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}

		props, err := dstBlobClient.GetProperties(ctx, nil)
		if err != nil {
			return translateErr(dstContainer, dstName, err)
		}
		if props.CopyStatus != nil {
			status = *props.CopyStatus
		}
	}

	if status != blob.CopyStatusTypeSuccess {
		reason := "unknown"
		return fmt.Errorf("azure: copy %s/%s -> %s/%s did not succeed: %s", srcContainer, srcName, dstContainer, dstName, reason)
	}
	return nil
}

// DeleteBlob deletes a blob, conditioned on the lease token when non-empty.
func (c *Client) DeleteBlob(ctx context.Context, containerName, name, leaseToken string) error {
	blobClient := c.inner.ServiceClient().NewContainerClient(containerName).NewBlobClient(name)

	opts := &blob.DeleteOptions{}
	if leaseToken != "" {
		opts.AccessConditions = &blob.AccessConditions{
			LeaseAccessConditions: &blob.LeaseAccessConditions{LeaseID: to.Ptr(leaseToken)},
		}
	}

	_, err := blobClient.Delete(ctx, opts)
	if err != nil {
		return translateErr(containerName, name, err)
	}
	return nil
}

// AcquireLease acquires a lease on a blob. Conflict (another holder already
// has the lease) is translated to objectstore.ErrConflict rather than
// propagated, matching the lease manager's acquire() → token | absent
// contract.
func (c *Client) AcquireLease(ctx context.Context, containerName, name string, duration time.Duration) (objectstore.LeaseHandle, error) {
	blobClient := c.inner.ServiceClient().NewContainerClient(containerName).NewBlobClient(name)
	leaseClient, err := lease.NewBlobClient(blobClient, nil)
	if err != nil {
		return objectstore.LeaseHandle{}, fmt.Errorf("azure: lease client: %w", err)
	}

	seconds := int32(duration.Round(time.Second).Seconds())
	resp, err := leaseClient.AcquireLease(ctx, seconds, nil)
	if err != nil {
		return objectstore.LeaseHandle{}, translateErr(containerName, name, err)
	}

	token := ""
	if resp.LeaseID != nil {
		token = *resp.LeaseID
	}
	return objectstore.LeaseHandle{Token: token, Container: containerName, Name: name}, nil
}

// RenewLease extends a held lease.
func (c *Client) RenewLease(ctx context.Context, h objectstore.LeaseHandle) error {
	blobClient := c.inner.ServiceClient().NewContainerClient(h.Container).NewBlobClient(h.Name)
	leaseClient, err := lease.NewBlobClient(blobClient, &lease.BlobClientOptions{LeaseID: to.Ptr(h.Token)})
	if err != nil {
		return fmt.Errorf("azure: lease client: %w", err)
	}

	_, err = leaseClient.RenewLease(ctx, nil)
	if err != nil {
		return translateErr(h.Container, h.Name, err)
	}
	return nil
}

// ReleaseLease relinquishes a held lease. "Lease not held"/"lease already
// gone" is swallowed as success, per the lease manager's release() contract.
func (c *Client) ReleaseLease(ctx context.Context, h objectstore.LeaseHandle) error {
	blobClient := c.inner.ServiceClient().NewContainerClient(h.Container).NewBlobClient(h.Name)
	leaseClient, err := lease.NewBlobClient(blobClient, &lease.BlobClientOptions{LeaseID: to.Ptr(h.Token)})
	if err != nil {
		return fmt.Errorf("azure: lease client: %w", err)
	}

	_, err = leaseClient.ReleaseLease(ctx, nil)
	if err != nil {
		translated := translateErr(h.Container, h.Name, err)
		if objectstore.IsLeaseNotHeld(translated) {
			return nil
		}
		return translated
	}
	return nil
}

// translateErr classifies an azcore.ResponseError into the objectstore
// error taxonomy. Non-ResponseError failures (network, context cancellation)
// are wrapped as transient.
func translateErr(containerName, name string, err error) error {
	if err == nil {
		return nil
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusConflict,
			respErr.ErrorCode == string(bloberror.LeaseAlreadyPresent),
			respErr.ErrorCode == string(bloberror.ConditionNotMet):
			return objectstore.NewConflictError(containerName, name, respErr.ErrorCode)
		case respErr.StatusCode == http.StatusNotFound,
			respErr.ErrorCode == string(bloberror.BlobNotFound),
			respErr.ErrorCode == string(bloberror.ContainerNotFound):
			return objectstore.NewNotFoundError(containerName, name)
		case respErr.ErrorCode == string(bloberror.LeaseNotPresentWithLeaseOperation),
			respErr.ErrorCode == string(bloberror.LeaseLost),
			respErr.ErrorCode == string(bloberror.LeaseIDMismatchWithLeaseOperation):
			return objectstore.NewLeaseNotHeldError(containerName, name)
		}
	}

	return objectstore.NewTransientError(containerName, name, err)
}
