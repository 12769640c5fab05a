/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"context"
	"fmt"

	"chainguard.dev/promptlab/engine/domain"
)

const insertAuditQuery = `INSERT INTO audit_events (
		id, workspace_id, actor, action, resource_type, resource_id, message, metadata, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

func (s *Store) AppendAudit(ctx context.Context, e *domain.AuditEvent) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		if metadata, err = encodeJSON(e.Metadata); err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, insertAuditQuery,
		e.ID, e.WorkspaceID, e.Actor, e.Action, e.ResourceType, e.ResourceID,
		nullIfEmpty(e.Message), metadata, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
