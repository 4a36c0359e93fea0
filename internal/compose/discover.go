// Package compose derives dependency endpoints from a docker-compose file so
// a bootstrap plan does not have to restate ports the stack already declares.
package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"

	"github.com/nholik/stackboot/internal/probe"
)

const defaultDiscoveryHost = "localhost"

// DiscoverEndpoints parses a compose file and returns one TCP endpoint per
// service with a published port, named after the service. Services without
// published ports are skipped: nothing outside the stack can probe them.
func DiscoverEndpoints(ctx context.Context, path, host string) ([]probe.Endpoint, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	return discoverFromBody(ctx, body, host)
}

func discoverFromBody(ctx context.Context, body []byte, host string) ([]probe.Endpoint, error) {
	if len(body) == 0 {
		return nil, errors.New("compose body is empty")
	}
	if host == "" {
		host = defaultDiscoveryHost
	}

	details := types.ConfigDetails{
		WorkingDir: ".",
		ConfigFiles: []types.ConfigFile{
			{
				Filename: "compose.yml",
				Content:  body,
			},
		},
		Environment: types.Mapping{},
	}

	project, err := loader.LoadWithContext(ctx, details, func(opts *loader.Options) {
		opts.SetProjectName("stackboot", false)
	})
	if err != nil {
		return nil, fmt.Errorf("load compose: %w", err)
	}
	if len(project.Services) == 0 {
		return nil, errors.New("compose has no services")
	}

	endpoints := make([]probe.Endpoint, 0, len(project.Services))
	for name, service := range project.Services {
		port, ok, err := publishedPort(service)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		if !ok {
			continue
		}
		endpoints = append(endpoints, probe.Endpoint{
			Name:     name,
			Host:     host,
			Port:     port,
			Protocol: probe.ProtocolTCP,
		})
	}

	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].Name < endpoints[j].Name
	})
	return endpoints, nil
}

// publishedPort returns the first published TCP port of a service in port
// order, so discovery is deterministic across runs.
func publishedPort(service types.ServiceConfig) (int, bool, error) {
	ports := make([]int, 0, len(service.Ports))
	for _, portConfig := range service.Ports {
		proto := portConfig.Protocol
		if proto == "" {
			proto = "tcp"
		}
		if !strings.EqualFold(proto, "tcp") {
			continue
		}
		if portConfig.Published == "" {
			continue
		}

		published, err := strconv.Atoi(portConfig.Published)
		if err != nil {
			// Published ranges ("8080-8090") are not probeable as a single
			// endpoint.
			continue
		}

		// nat validates the pair the same way the runtime will.
		if _, err := nat.NewPort(strings.ToLower(proto), strconv.Itoa(published)); err != nil {
			return 0, false, fmt.Errorf("invalid published port %d: %w", published, err)
		}
		ports = append(ports, published)
	}

	if len(ports) == 0 {
		return 0, false, nil
	}
	sort.Ints(ports)
	return ports[0], true, nil
}

// Merge overlays explicitly declared endpoints on discovered ones. A
// declared endpoint wins over a discovered endpoint of the same name, and
// the service being launched is never its own dependency.
func Merge(declared, discovered []probe.Endpoint, excludeService string) []probe.Endpoint {
	byName := make(map[string]bool, len(declared))
	merged := make([]probe.Endpoint, 0, len(declared)+len(discovered))
	for _, endpoint := range declared {
		byName[endpoint.Name] = true
		merged = append(merged, endpoint)
	}
	for _, endpoint := range discovered {
		if byName[endpoint.Name] || endpoint.Name == excludeService {
			continue
		}
		merged = append(merged, endpoint)
	}
	return merged
}
