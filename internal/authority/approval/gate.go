// Package approval decides who may approve a purchase order. Each approval
// request grants the named approvers, which may be subjects or roles, and
// denies the requester.
package approval

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	authoritydomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
)

//go:embed model.conf
var modelText string

const (
	ActionApprove = "approve"

	effectAllow = "allow"
	effectDeny  = "deny"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Cfg config.Config
	Log *zap.Logger
}

type Gate struct {
	enforcer *casbin.SyncedEnforcer
	log      *zap.Logger
}

// NewEnforcer loads persisted grants and installs the configured role links.
func NewEnforcer(db *gorm.DB, roles []config.RoleAssignment) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	for _, r := range roles {
		has, err := enforcer.HasGroupingPolicy(r.Subject, r.Role)
		if err != nil {
			return nil, err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(r.Subject, r.Role); err != nil {
			return nil, err
		}
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewGate(p Params) (authoritydomain.ApprovalGate, error) {
	enforcer, err := NewEnforcer(p.DB, p.Cfg.Authority.ApproverRoles)
	if err != nil {
		return nil, fmt.Errorf("approval enforcer: %w", err)
	}
	return &Gate{enforcer: enforcer, log: p.Log.Named("authority.approval")}, nil
}

// Grant replaces the order's grants. requester may be empty.
func (g *Gate) Grant(orderID, requester string, approvers []string) error {
	obj := object(orderID)
	if _, err := g.enforcer.RemoveFilteredPolicy(1, obj); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(approvers))
	rules := make([][]string, 0, len(approvers)+1)
	for _, approver := range approvers {
		approver = strings.TrimSpace(approver)
		if approver == "" {
			continue
		}
		if _, ok := seen[approver]; ok {
			continue
		}
		seen[approver] = struct{}{}
		rules = append(rules, []string{approver, obj, ActionApprove, effectAllow})
	}
	if requester = strings.TrimSpace(requester); requester != "" {
		rules = append(rules, []string{requester, obj, ActionApprove, effectDeny})
	}
	if len(rules) == 0 {
		return nil
	}
	if _, err := g.enforcer.AddPolicies(rules); err != nil {
		return err
	}
	g.log.Debug("approvers granted", zap.String("order_id", orderID), zap.Int("approvers", len(seen)))
	return nil
}

// Authorize returns ErrNotApprover unless subject, directly or through a
// role, was named for the order and did not request the approval.
func (g *Gate) Authorize(orderID, subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return authoritydomain.ErrNotApprover
	}
	allowed, err := g.enforcer.Enforce(subject, object(orderID), ActionApprove)
	if err != nil {
		return err
	}
	if !allowed {
		g.log.Info("approval denied", zap.String("order_id", orderID), zap.String("subject", subject))
		return authoritydomain.ErrNotApprover
	}
	return nil
}

// Revoke drops every grant for the order.
func (g *Gate) Revoke(orderID string) error {
	_, err := g.enforcer.RemoveFilteredPolicy(1, object(orderID))
	return err
}

func object(orderID string) string {
	return "order:" + strings.TrimSpace(orderID)
}

var _ authoritydomain.ApprovalGate = (*Gate)(nil)
