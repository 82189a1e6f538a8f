package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/sqlite"
)

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) *DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a definition with its states, rules and rule roles
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	query := `
		INSERT INTO workflow_definitions (
			id, name, description, version, is_active, created, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		def.ID,
		def.Name,
		def.Description,
		def.Version,
		def.IsActive,
		def.Created,
		def.LastModified,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s version %d already exists", workflow.ErrInvalidDefinition, def.Name, def.Version)
		}
		r.logger.Error("Failed to create definition", zap.String("id", def.ID), zap.Error(err))
		return fmt.Errorf("failed to create definition: %w", err)
	}

	return r.insertChildren(ctx, def)
}

// GetByID retrieves a definition by ID
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	query := `
		SELECT id, name, description, version, is_active, created, last_modified
		FROM workflow_definitions
		WHERE id = ?
	`
	return r.getOne(ctx, query, id)
}

// GetLatestByName retrieves the highest version of a named definition
func (r *DefinitionRepository) GetLatestByName(ctx context.Context, name string) (*entity.WorkflowDefinition, error) {
	query := `
		SELECT id, name, description, version, is_active, created, last_modified
		FROM workflow_definitions
		WHERE name = ?
		ORDER BY version DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, name)
}

// List retrieves definitions ordered by name and version
func (r *DefinitionRepository) List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error) {
	query := `
		SELECT id, name, description, version, is_active, created, last_modified
		FROM workflow_definitions
		WHERE (? = 0 OR is_active = 1)
		ORDER BY name ASC, version ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, activeOnly)
	if err != nil {
		r.logger.Error("Failed to list definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate definitions: %w", err)
	}
	rows.Close()

	for _, def := range defs {
		if err := r.loadChildren(ctx, def); err != nil {
			return nil, err
		}
	}

	return defs, nil
}

// Update rewrites a definition's columns and replaces its states and rules
func (r *DefinitionRepository) Update(ctx context.Context, def *entity.WorkflowDefinition) error {
	query := `
		UPDATE workflow_definitions
		SET name = ?, description = ?, is_active = ?, last_modified = ?
		WHERE id = ?
	`

	exec := sqlite.Conn(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, def.Name, def.Description, def.IsActive, def.LastModified, def.ID)
	if err != nil {
		r.logger.Error("Failed to update definition", zap.String("id", def.ID), zap.Error(err))
		return fmt.Errorf("failed to update definition: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: definition %s", workflow.ErrNotFound, def.ID)
	}

	// Rules go first: they reference states
	for _, stmt := range []string{
		"DELETE FROM transition_rules WHERE definition_id = ?",
		"DELETE FROM workflow_states WHERE definition_id = ?",
		"DELETE FROM workflow_definition_content_types WHERE definition_id = ?",
	} {
		if _, err := exec.ExecContext(ctx, stmt, def.ID); err != nil {
			return fmt.Errorf("failed to clear definition children: %w", err)
		}
	}

	return r.insertChildren(ctx, def)
}

// Delete removes a definition and, by cascade, its states and rules
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, "DELETE FROM workflow_definitions WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to delete definition", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete definition: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: definition %s", workflow.ErrNotFound, id)
	}
	return nil
}

func (r *DefinitionRepository) getOne(ctx context.Context, query string, arg interface{}) (*entity.WorkflowDefinition, error) {
	def, err := scanDefinition(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: definition %v", workflow.ErrNotFound, arg)
	}
	if err != nil {
		r.logger.Error("Failed to get definition", zap.Any("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	if err := r.loadChildren(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (r *DefinitionRepository) insertChildren(ctx context.Context, def *entity.WorkflowDefinition) error {
	exec := sqlite.Conn(ctx, r.db)

	for _, ct := range def.ContentTypes {
		if _, err := exec.ExecContext(ctx,
			"INSERT INTO workflow_definition_content_types (definition_id, content_type) VALUES (?, ?)",
			def.ID, ct,
		); err != nil {
			return fmt.Errorf("failed to insert content type: %w", err)
		}
	}

	for _, s := range def.States {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO workflow_states (
				definition_id, id, state_id, name, description,
				is_initial, is_published, is_final, sort_order, color_code
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			def.ID, s.ID, s.StateID, s.Name, s.Description,
			s.IsInitial, s.IsPublished, s.IsFinal, s.SortOrder, s.ColorCode,
		)
		if err != nil {
			r.logger.Error("Failed to insert state", zap.String("definition_id", def.ID), zap.String("state_id", s.StateID), zap.Error(err))
			return fmt.Errorf("failed to insert state %s: %w", s.StateID, err)
		}
	}

	for _, rule := range def.Transitions {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO transition_rules (
				definition_id, id, name, from_state_id, to_state_id,
				requires_comment, comment_template, is_active, sort_order
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			def.ID, rule.ID, rule.Name, rule.FromStateID, rule.ToStateID,
			rule.RequiresComment, rule.CommentTemplate, rule.IsActive, rule.SortOrder,
		)
		if err != nil {
			r.logger.Error("Failed to insert transition rule", zap.String("definition_id", def.ID), zap.String("rule_id", rule.ID), zap.Error(err))
			return fmt.Errorf("failed to insert transition rule %s: %w", rule.ID, err)
		}

		for _, role := range rule.AllowedRoles.Slice() {
			if _, err := exec.ExecContext(ctx,
				"INSERT INTO transition_rule_roles (definition_id, rule_id, role) VALUES (?, ?, ?)",
				def.ID, rule.ID, role,
			); err != nil {
				return fmt.Errorf("failed to insert rule role: %w", err)
			}
		}
	}

	return nil
}

func (r *DefinitionRepository) loadChildren(ctx context.Context, def *entity.WorkflowDefinition) error {
	exec := sqlite.Conn(ctx, r.db)

	ctRows, err := exec.QueryContext(ctx,
		"SELECT content_type FROM workflow_definition_content_types WHERE definition_id = ? ORDER BY content_type", def.ID)
	if err != nil {
		return fmt.Errorf("failed to load content types: %w", err)
	}
	for ctRows.Next() {
		var ct string
		if err := ctRows.Scan(&ct); err != nil {
			ctRows.Close()
			return fmt.Errorf("failed to scan content type: %w", err)
		}
		def.ContentTypes = append(def.ContentTypes, ct)
	}
	ctRows.Close()

	stateRows, err := exec.QueryContext(ctx, `
		SELECT id, state_id, name, description, is_initial, is_published, is_final, sort_order, color_code
		FROM workflow_states
		WHERE definition_id = ?
		ORDER BY sort_order ASC, rowid ASC`, def.ID)
	if err != nil {
		return fmt.Errorf("failed to load states: %w", err)
	}
	def.States = []entity.WorkflowState{}
	for stateRows.Next() {
		var s entity.WorkflowState
		if err := stateRows.Scan(&s.ID, &s.StateID, &s.Name, &s.Description,
			&s.IsInitial, &s.IsPublished, &s.IsFinal, &s.SortOrder, &s.ColorCode); err != nil {
			stateRows.Close()
			return fmt.Errorf("failed to scan state: %w", err)
		}
		def.States = append(def.States, s)
	}
	stateRows.Close()

	ruleRows, err := exec.QueryContext(ctx, `
		SELECT id, name, from_state_id, to_state_id, requires_comment, comment_template, is_active, sort_order
		FROM transition_rules
		WHERE definition_id = ?
		ORDER BY sort_order ASC, rowid ASC`, def.ID)
	if err != nil {
		return fmt.Errorf("failed to load transition rules: %w", err)
	}
	def.Transitions = []entity.TransitionRule{}
	index := make(map[string]int)
	for ruleRows.Next() {
		var rule entity.TransitionRule
		if err := ruleRows.Scan(&rule.ID, &rule.Name, &rule.FromStateID, &rule.ToStateID,
			&rule.RequiresComment, &rule.CommentTemplate, &rule.IsActive, &rule.SortOrder); err != nil {
			ruleRows.Close()
			return fmt.Errorf("failed to scan transition rule: %w", err)
		}
		rule.AllowedRoles = entity.NewRoleSet()
		index[rule.ID] = len(def.Transitions)
		def.Transitions = append(def.Transitions, rule)
	}
	ruleRows.Close()

	roleRows, err := exec.QueryContext(ctx,
		"SELECT rule_id, role FROM transition_rule_roles WHERE definition_id = ?", def.ID)
	if err != nil {
		return fmt.Errorf("failed to load rule roles: %w", err)
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var ruleID, role string
		if err := roleRows.Scan(&ruleID, &role); err != nil {
			return fmt.Errorf("failed to scan rule role: %w", err)
		}
		if i, ok := index[ruleID]; ok {
			def.Transitions[i].AllowedRoles.Add(role)
		}
	}

	return roleRows.Err()
}

func scanDefinition(row scanner) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	err := row.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&def.Version,
		&def.IsActive,
		&def.Created,
		&def.LastModified,
	)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
