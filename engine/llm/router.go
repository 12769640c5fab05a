/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llm

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/promptlab/engine/domain"
)

// Router dispatches each completion to a provider chosen by model prefix.
type Router struct {
	routes   []route
	fallback Completer
}

type route struct {
	prefix    string
	completer Completer
}

// NewRouter creates an empty router. Without a fallback, unknown models fail.
func NewRouter() *Router {
	return &Router{}
}

// Handle routes models whose lowercase name starts with prefix to c.
func (r *Router) Handle(prefix string, c Completer) *Router {
	r.routes = append(r.routes, route{prefix: strings.ToLower(prefix), completer: c})
	return r
}

// Fallback sets the provider used when no prefix matches.
func (r *Router) Fallback(c Completer) *Router {
	r.fallback = c
	return r
}

// ForModel returns the provider for model.
func (r *Router) ForModel(model string) (Completer, error) {
	lower := strings.ToLower(model)
	for _, rt := range r.routes {
		if strings.HasPrefix(lower, rt.prefix) {
			return rt.completer, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("unsupported model: %s", model)
}

// Complete implements Completer.
func (r *Router) Complete(ctx context.Context, msgs Messages, cfg domain.ModelConfig) (Completion, error) {
	c, err := r.ForModel(cfg.Model)
	if err != nil {
		return Completion{}, err
	}
	return c.Complete(ctx, msgs, cfg)
}
