package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/blobtailer/blobtailer/pkg/objectstore"
	"github.com/blobtailer/blobtailer/pkg/tracker"
	"github.com/blobtailer/blobtailer/pkg/tracker/container"
	"github.com/blobtailer/blobtailer/pkg/tracker/registry"
	"github.com/blobtailer/blobtailer/pkg/tracker/tags"
)

// NewTracker creates the state-tracker variant selected by cfg.Strategy,
// decoding that variant's sub-config via mapstructure — the same
// decode-by-string-enum shape as the teacher's createMetadataStore
// dispatching to createMemoryMetadataStore/createBadgerMetadataStore/
// createPostgresMetadataStore.
func NewTracker(cfg TrackingConfig, leaseCfg LeaseConfig, processor string, store objectstore.Client) (tracker.Tracker, error) {
	switch cfg.Strategy {
	case "tags":
		return newTagsTracker(cfg.Tags, leaseCfg, processor, store)
	case "container":
		return newContainerTracker(cfg.Container, leaseCfg, store)
	case "registry":
		return newRegistryTracker(cfg.Registry, processor)
	default:
		return nil, fmt.Errorf("config: unknown tracking strategy %q", cfg.Strategy)
	}
}

func newTagsTracker(raw map[string]any, leaseCfg LeaseConfig, processor string, store objectstore.Client) (*tags.Tracker, error) {
	var tagsCfg tags.Config
	if err := mapstructure.Decode(raw, &tagsCfg); err != nil {
		return nil, fmt.Errorf("config: invalid tags tracking config: %w", err)
	}
	if tagsCfg.Container == "" {
		return nil, fmt.Errorf("config: tracking.tags.container is required")
	}
	tagsCfg.Processor = processor
	tagsCfg.LeaseDuration = leaseCfg.Duration
	tagsCfg.LeaseRenewal = leaseCfg.Renewal

	return tags.New(store, tagsCfg), nil
}

func newContainerTracker(raw map[string]any, leaseCfg LeaseConfig, store objectstore.Client) (*container.Tracker, error) {
	var containerCfg container.Config
	if err := mapstructure.Decode(raw, &containerCfg); err != nil {
		return nil, fmt.Errorf("config: invalid container tracking config: %w", err)
	}
	if containerCfg.Incoming == "" || containerCfg.Archive == "" || containerCfg.Errors == "" {
		return nil, fmt.Errorf("config: tracking.container.incoming, archive, and errors are all required")
	}
	containerCfg.LeaseDuration = leaseCfg.Duration
	containerCfg.LeaseRenewal = leaseCfg.Renewal

	return container.New(store, containerCfg), nil
}

func newRegistryTracker(raw map[string]any, processor string) (*registry.Tracker, error) {
	var registryCfg registry.Config
	if err := mapstructure.Decode(raw, &registryCfg); err != nil {
		return nil, fmt.Errorf("config: invalid registry tracking config: %w", err)
	}
	if registryCfg.Path == "" {
		return nil, fmt.Errorf("config: tracking.registry.path is required")
	}
	registryCfg.Processor = processor

	return registry.Open(registryCfg)
}
