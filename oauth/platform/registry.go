package platform

import (
	"fmt"
	"strings"
)

var aliases = map[string]Platform{
	"twitter":   Twitter,
	"x":         Twitter,
	"linkedin":  LinkedIn,
	"facebook":  Facebook,
	"fb":        Facebook,
	"instagram": Instagram,
	"ig":        Instagram,
}

// Parse resolves a platform name or alias, case insensitively.
func Parse(name string) (Platform, error) {
	p, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return p, nil
}

// Registry maps platforms to their adapters.
type Registry struct {
	adapters map[Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Lookup returns the adapter for a platform name or alias.
func (r *Registry) Lookup(name string) (Adapter, error) {
	p, err := Parse(name)
	if err != nil {
		return nil, err
	}
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, p)
	}
	return a, nil
}

// Platforms lists registered platforms in display order.
func (r *Registry) Platforms() []Platform {
	var out []Platform
	for _, p := range All {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// NewDefaultRegistry builds an adapter for every configured descriptor.
func NewDefaultRegistry(descriptors map[Platform]Descriptor, opts ...Option) *Registry {
	var adapters []Adapter
	for _, p := range All {
		d, ok := descriptors[p]
		if !ok || !d.Configured() {
			continue
		}
		switch p {
		case Twitter:
			adapters = append(adapters, NewTwitter(d, opts...))
		case LinkedIn:
			adapters = append(adapters, NewLinkedIn(d, opts...))
		case Facebook:
			adapters = append(adapters, NewFacebook(d, opts...))
		case Instagram:
			adapters = append(adapters, NewInstagram(d, opts...))
		}
	}
	return NewRegistry(adapters...)
}
