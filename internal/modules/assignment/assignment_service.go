package assignment

import (
	"context"
	"fmt"
	"time"

	"family-booking/internal/config"
	"family-booking/internal/models"
	"family-booking/internal/modules/providers"
	"family-booking/internal/modules/requests"
	"family-booking/internal/notifications"
	"family-booking/pkg/matching"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ServiceInterface 定义分配协调器对 Handler 暴露的所有业务方法。
type ServiceInterface interface {
	AssignManually(ctx context.Context, requestID, providerID string, actor models.Actor) (*models.AssignmentResult, error)
	AutoAssign(ctx context.Context, requestID string) (*models.AssignmentResult, error)
	BulkAssign(ctx context.Context, requestIDs []string) []*models.AssignmentResult
	AcceptMission(ctx context.Context, requestID string, actor models.Actor) (*models.ServiceRequest, error)
	DeclineMission(ctx context.Context, requestID string, actor models.Actor) (*models.Mission, error)
	ExpireOverdue(ctx context.Context) (int, error)
	Candidates(ctx context.Context, requestID string) ([]models.ProviderMatch, error)
	GetMission(ctx context.Context, requestID string) (*models.Mission, error)
}

// Matcher 是外部匹配引擎，返回按分数排列的候选 provider。
type Matcher interface {
	MatchProviders(ctx context.Context, c matching.Criteria) ([]matching.Candidate, error)
}

// Service 是分配协调器：手动分配、自动匹配、批量分配、接单/拒单与超时升级。
// 所有绑定 provider 的写操作都在锁定请求行的事务中完成，
// 通知与实时事件只在事务提交之后发送。
type Service struct {
	repo      RepositoryInterface
	matcher   Matcher
	announcer *requests.Announcer
	cfg       config.AssignmentConfig
	log       *logrus.Entry

	// Now 是时钟，测试中替换。
	Now func() time.Time
}

// NewService 构造函数，注入 repo、匹配引擎、announcer 与分配参数。
func NewService(repo RepositoryInterface, matcher Matcher, announcer *requests.Announcer, cfg config.AssignmentConfig, log *logrus.Entry) *Service {
	def := config.DefaultAssignment()
	if cfg.TopN < 1 {
		cfg.TopN = def.TopN
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	if cfg.BulkConcurrency < 1 {
		cfg.BulkConcurrency = def.BulkConcurrency
	}
	return &Service{
		repo:      repo,
		matcher:   matcher,
		announcer: announcer,
		cfg:       cfg,
		log:       log.WithField("module", "assignment"),
		Now:       time.Now,
	}
}

// announcement 记录事务提交后需要发送的通知。
// moved 为 false 时状态未变，只向新一批 provider 发出任务邀请。
type announcement struct {
	req     *models.ServiceRequest
	from    models.RequestStatus
	moved   bool
	parties notifications.Parties
}

func (s *Service) announce(ctx context.Context, a announcement) int {
	if a.req == nil {
		return 0
	}
	if a.moved {
		return s.announcer.Transition(ctx, a.req, a.from, a.parties)
	}
	if len(a.parties.Offered) == 0 {
		return 0
	}
	n, ok := notifications.ForTransition(a.req, a.from, a.parties)
	if !ok {
		return 0
	}
	return s.announcer.Send(ctx, n)
}

// assignable 检查请求当前是否允许发起新的分配（目标状态为 to）。
// 已绑定 provider 或已在等待接单的请求返回 ErrMissionAlreadyAssigned。
func assignable(req *models.ServiceRequest, to models.RequestStatus) error {
	switch {
	case req.AssignedProviderID != nil, req.Status == models.StatusSearchingProvider:
		return models.ErrMissionAlreadyAssigned
	case req.Status == models.StatusNew, req.Status == models.StatusUnmatched:
		return nil
	}
	return &models.InvalidTransitionError{From: req.Status, To: to}
}

// move 在事务内执行一次状态流转：校验、写入（以旧状态为条件）并追加事件。
func (s *Service) move(ctx context.Context, repo RepositoryInterface, req *models.ServiceRequest, to models.RequestStatus,
	providerID *string, actorID, kind string, payload map[string]any) (models.RequestStatus, error) {
	from := req.Status
	if err := req.ApplyTransition(to, s.Now()); err != nil {
		return from, err
	}
	if providerID != nil {
		req.AssignedProviderID = providerID
	}
	if err := req.CheckAssignment(); err != nil {
		return from, &models.InvalidTransitionError{From: from, To: to}
	}
	if err := repo.UpdateRequestStatus(ctx, req, from); err != nil {
		return from, err
	}
	return from, repo.AppendEvent(ctx, &models.RequestEvent{
		RequestID:  req.ID,
		Kind:       kind,
		FromStatus: &from,
		ToStatus:   &to,
		ActorID:    actorID,
		Payload:    payload,
	})
}

// ---- 1) 管理员手动分配 ----

// AssignManually 由管理员直接指定 provider，跳过接单环节：
// 请求从 new/unmatched 直接进入 awaiting_client_confirmation。
func (s *Service) AssignManually(ctx context.Context, requestID, providerID string, actor models.Actor) (*models.AssignmentResult, error) {
	// 1) 资格校验，不合格时不写入任何数据
	p, err := s.repo.FindProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if err := p.Eligibility(); err != nil {
		return nil, err
	}

	var a announcement
	var mission *models.Mission
	err = s.repo.InTx(ctx, func(repo RepositoryInterface) error {
		// 2) 锁定请求行并校验状态
		req, err := repo.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if err := assignable(req, models.StatusAwaitingClientConfirmation); err != nil {
			return err
		}

		// 3) 写入 mission，已有 provider 时由条件写入拒绝
		now := s.Now().UTC()
		pid := p.ID
		m := &models.Mission{
			RequestID:          req.ID,
			EligibleProviders:  []string{pid},
			NotifiedCount:      1,
			AssignedProviderID: &pid,
			AssignmentMethod:   models.MethodAdminManual,
			AssignedAt:         &now,
			SentNotifications:  1,
			ResponsesReceived:  1,
		}
		if err := repo.SaveMission(ctx, m); err != nil {
			return err
		}

		// 4) 状态流转
		from, err := s.move(ctx, repo, req, models.StatusAwaitingClientConfirmation, &pid, actor.ID, models.EventAssignment,
			map[string]any{"method": string(models.MethodAdminManual), "provider_id": pid})
		if err != nil {
			return err
		}
		a = announcement{req: req, from: from, moved: true, parties: notifications.Parties{Provider: p}}
		mission = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 5) 提交后通知 provider 与客户
	sent := s.announce(ctx, a)
	s.log.WithFields(logrus.Fields{
		"request_id":  requestID,
		"provider_id": providerID,
		"admin_id":    actor.ID,
	}).Info("provider assigned manually")

	return &models.AssignmentResult{
		RequestID:         requestID,
		Success:           true,
		Status:            a.req.Status,
		ProviderIDs:       []string{providerID},
		NotificationsSent: sent,
		Mission:           mission,
	}, nil
}

// ---- 2) 自动匹配 ----

func criteria(req *models.ServiceRequest, cfg config.AssignmentConfig) matching.Criteria {
	return matching.Criteria{
		ServiceType:   req.ServiceType,
		Location:      req.Location,
		PostalCode:    req.PostalCode,
		Urgency:       string(req.Urgency),
		Budget:        req.Budget,
		MinRating:     cfg.MinRating,
		MaxDistanceKm: cfg.MaxDistanceKm,
		RequestedDate: req.PreferredDate,
	}
}

// AutoAssign 调用匹配引擎，将排名前 TopN 的合格 provider 设为受邀者，
// 请求进入 searching_provider 并设置响应截止时间。
// 没有合格 provider 时请求进入 unmatched，记录管理员告警并返回 ErrNoEligibleProviders。
// 从 unmatched 重新发起时复用原有 mission。
func (s *Service) AutoAssign(ctx context.Context, requestID string) (*models.AssignmentResult, error) {
	// 1) 预检，避免无意义地调用匹配引擎
	req, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := assignable(req, models.StatusSearchingProvider); err != nil {
		return nil, err
	}

	// 2) 调用匹配引擎（事务外，可能较慢）
	candidates, err := s.matcher.MatchProviders(ctx, criteria(req, s.cfg))
	if err != nil {
		return nil, fmt.Errorf("service.AutoAssign: match providers: %w", err)
	}

	// 3) 与 provider 目录合并并排序
	var pool []*models.Provider
	if len(candidates) > 0 {
		pool, err = s.repo.FindProviders(ctx, candidateIDs(candidates))
		if err != nil {
			return nil, err
		}
	}
	ranking := rank(req, candidates, pool)

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"candidates": len(candidates),
		"eligible":   len(ranking),
	}).Debug("matching engine answered")

	if len(ranking) == 0 {
		return s.markUnmatched(ctx, requestID)
	}
	return s.offer(ctx, requestID, ranking)
}

func (s *Service) offer(ctx context.Context, requestID string, ranking []ranked) (*models.AssignmentResult, error) {
	batch := s.cfg.TopN
	if batch > len(ranking) {
		batch = len(ranking)
	}
	offered := make([]*models.Provider, batch)
	for i := range offered {
		offered[i] = ranking[i].provider
	}

	var a announcement
	var mission *models.Mission
	err := s.repo.InTx(ctx, func(repo RepositoryInterface) error {
		req, err := repo.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		// 匹配期间请求可能已被取消或由其他途径分配
		if err := assignable(req, models.StatusSearchingProvider); err != nil {
			return err
		}

		deadline := s.Now().UTC().Add(s.cfg.ResponseTimeout)
		m := &models.Mission{
			RequestID:         req.ID,
			EligibleProviders: rankedIDs(ranking),
			NotifiedCount:     batch,
			AssignmentMethod:  models.MethodAutoMatch,
			ResponseDeadline:  &deadline,
			SentNotifications: batch,
		}
		if err := repo.SaveMission(ctx, m); err != nil {
			return err
		}

		from, err := s.move(ctx, repo, req, models.StatusSearchingProvider, nil, models.SystemActor, models.EventAssignment,
			map[string]any{"method": string(models.MethodAutoMatch), "offered": m.Notified()})
		if err != nil {
			return err
		}
		a = announcement{req: req, from: from, moved: true, parties: notifications.Parties{Offered: offered}}
		mission = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	sent := s.announce(ctx, a)
	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"offered":    mission.Notified(),
		"deadline":   mission.ResponseDeadline,
	}).Info("mission offered")

	return &models.AssignmentResult{
		RequestID:         requestID,
		Success:           true,
		Status:            a.req.Status,
		ProviderIDs:       mission.Notified(),
		NotificationsSent: sent,
		Mission:           mission,
	}, nil
}

func (s *Service) markUnmatched(ctx context.Context, requestID string) (*models.AssignmentResult, error) {
	var a announcement
	err := s.repo.InTx(ctx, func(repo RepositoryInterface) error {
		req, err := repo.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if err := assignable(req, models.StatusUnmatched); err != nil {
			return err
		}
		a = announcement{req: req, from: req.Status}
		// 重新发起时请求已是 unmatched，只补记告警
		if req.Status != models.StatusUnmatched {
			if _, err := s.move(ctx, repo, req, models.StatusUnmatched, nil, models.SystemActor, models.EventTransition,
				map[string]any{"reason": "no eligible providers"}); err != nil {
				return err
			}
			a.moved = true
		}
		return repo.CreateAlert(ctx, &models.AdminAlert{
			RequestID: &req.ID,
			Kind:      models.AlertNoEligibleProviders,
			Message:   fmt.Sprintf("No eligible provider for %s request in %s", req.ServiceType, req.Location),
		})
	})
	if err != nil {
		return nil, err
	}

	sent := s.announce(ctx, a)
	s.log.WithField("request_id", requestID).Warn("no eligible providers, request unmatched")

	return &models.AssignmentResult{
		RequestID:         requestID,
		Success:           false,
		Status:            a.req.Status,
		NotificationsSent: sent,
		Error:             models.ErrNoEligibleProviders.Error(),
		Code:              models.ErrorCode(models.ErrNoEligibleProviders),
	}, models.ErrNoEligibleProviders
}

// ---- 3) 批量分配 ----

// BulkAssign 对每个请求独立执行 AutoAssign（并发数受限），
// 结果与输入顺序一致，单个失败不影响其他请求。
func (s *Service) BulkAssign(ctx context.Context, requestIDs []string) []*models.AssignmentResult {
	results := make([]*models.AssignmentResult, len(requestIDs))

	var g errgroup.Group
	g.SetLimit(s.cfg.BulkConcurrency)
	for i, id := range requestIDs {
		i, id := i, id
		g.Go(func() error {
			res, err := s.AutoAssign(ctx, id)
			results[i] = bulkResult(id, res, err)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	s.log.WithFields(logrus.Fields{"requested": len(requestIDs), "succeeded": ok}).Info("bulk assignment finished")
	return results
}

func bulkResult(id string, res *models.AssignmentResult, err error) *models.AssignmentResult {
	if err == nil {
		return res
	}
	if res == nil {
		res = &models.AssignmentResult{RequestID: id}
	}
	res.Success = false
	res.Error = err.Error()
	res.Code = models.ErrorCode(err)
	return res
}

// ---- 4) Provider 接单 / 拒单 ----

// AcceptMission 由受邀 provider 调用，先到先得。
// 请求已不在 searching_provider（例如已被取消）时不做任何写入。
func (s *Service) AcceptMission(ctx context.Context, requestID string, actor models.Actor) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleProvider || actor.ProviderID == nil {
		return nil, models.ErrForbidden
	}
	pid := *actor.ProviderID

	var a announcement
	err := s.repo.InTx(ctx, func(repo RepositoryInterface) error {
		req, err := repo.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.AssignedProviderID != nil {
			return models.ErrMissionAlreadyAssigned
		}
		if req.Status != models.StatusSearchingProvider {
			return &models.InvalidTransitionError{From: req.Status, To: models.StatusAwaitingClientConfirmation}
		}

		m, err := repo.FindMission(ctx, req.ID)
		if err != nil {
			return err
		}
		if m.AssignedProviderID != nil {
			return models.ErrMissionAlreadyAssigned
		}
		if !m.WasNotified(pid) || m.HasDeclined(pid) {
			return models.ErrNotOffered
		}
		// provider 可能在邀请发出后被暂停
		p, err := repo.FindProvider(ctx, pid)
		if err != nil {
			return err
		}
		if err := p.Eligibility(); err != nil {
			return err
		}

		now := s.Now().UTC()
		m.AssignedProviderID = &pid
		m.AssignedAt = &now
		m.ResponseDeadline = nil
		m.ResponsesReceived++
		if err := repo.SaveMission(ctx, m); err != nil {
			return err
		}

		from, err := s.move(ctx, repo, req, models.StatusAwaitingClientConfirmation, &pid, actor.ID, models.EventAssignment,
			map[string]any{"method": string(m.AssignmentMethod), "provider_id": pid})
		if err != nil {
			return err
		}
		a = announcement{req: req, from: from, moved: true, parties: notifications.Parties{Provider: p}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, a)
	s.log.WithFields(logrus.Fields{"request_id": requestID, "provider_id": pid}).Info("mission accepted")
	return a.req, nil
}

// DeclineMission 记录 provider 的拒绝。所有受邀者都拒绝后立即升级，
// 与超时的处理相同。重复拒绝不产生新的写入。
func (s *Service) DeclineMission(ctx context.Context, requestID string, actor models.Actor) (*models.Mission, error) {
	if actor.Role != models.RoleProvider || actor.ProviderID == nil {
		return nil, models.ErrForbidden
	}
	pid := *actor.ProviderID

	var a announcement
	var mission *models.Mission
	err := s.repo.InTx(ctx, func(repo RepositoryInterface) error {
		req, err := repo.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.AssignedProviderID != nil {
			return models.ErrMissionAlreadyAssigned
		}
		if req.Status != models.StatusSearchingProvider {
			return &models.InvalidTransitionError{From: req.Status, To: models.StatusUnmatched}
		}

		m, err := repo.FindMission(ctx, req.ID)
		if err != nil {
			return err
		}
		mission = m
		if m.AssignedProviderID != nil {
			return models.ErrMissionAlreadyAssigned
		}
		if !m.WasNotified(pid) {
			return models.ErrNotOffered
		}
		if m.HasDeclined(pid) {
			return nil
		}

		m.DeclinedProviders = append(m.DeclinedProviders, pid)
		m.ResponsesReceived++
		err = repo.AppendEvent(ctx, &models.RequestEvent{
			RequestID: req.ID,
			Kind:      models.EventDecline,
			ActorID:   actor.ID,
			Payload:   map[string]any{"provider_id": pid},
		})
		if err != nil {
			return err
		}

		if !allDeclined(m) {
			return repo.SaveMission(ctx, m)
		}
		a, err = s.escalate(ctx, repo, req, m, models.EventDecline, "all offered providers declined")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, a)
	s.log.WithFields(logrus.Fields{"request_id": requestID, "provider_id": pid}).Info("mission declined")
	return mission, nil
}

func allDeclined(m *models.Mission) bool {
	for _, id := range m.Notified() {
		if !m.HasDeclined(id) {
			return false
		}
	}
	return true
}

// ---- 5) 超时升级 ----

// ExpireOverdue 处理所有已过响应截止时间且无人接单的 mission：
// 邀请排名中的下一批 provider，若已无候选则请求进入 unmatched 并告警。
// 返回处理的 mission 数量，单个失败只记录日志。
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	overdue, err := s.repo.ListOverdueMissions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("service.ExpireOverdue: %w", err)
	}

	handled := 0
	for _, m := range overdue {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		if err := s.expire(ctx, m.RequestID, now); err != nil {
			s.log.WithError(err).WithField("request_id", m.RequestID).Warn("expire overdue mission")
			continue
		}
		handled++
	}
	if handled > 0 {
		s.log.WithField("count", handled).Info("overdue missions processed")
	}
	return handled, nil
}

func (s *Service) expire(ctx context.Context, requestID string, now time.Time) error {
	var a announcement
	err := s.repo.InTx(ctx, func(repo RepositoryInterface) error {
		req, err := repo.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		m, err := repo.FindMission(ctx, requestID)
		if err != nil {
			return err
		}
		// 列表查询之后可能已有 provider 接单
		if m.AssignedProviderID != nil || m.ResponseDeadline == nil || m.ResponseDeadline.After(now) {
			return nil
		}
		// 请求已被取消或转入其他状态，只清除截止时间
		if req.Status != models.StatusSearchingProvider {
			m.ResponseDeadline = nil
			return repo.SaveMission(ctx, m)
		}
		a, err = s.escalate(ctx, repo, req, m, models.EventTimeout, "response deadline elapsed")
		return err
	})
	if err != nil {
		return err
	}
	s.announce(ctx, a)
	return nil
}

// escalate 在事务内邀请下一批候选，或在候选耗尽时将请求转为 unmatched。
func (s *Service) escalate(ctx context.Context, repo RepositoryInterface, req *models.ServiceRequest, m *models.Mission, kind, reason string) (announcement, error) {
	batch, err := s.nextBatch(ctx, repo, m)
	if err != nil {
		return announcement{}, err
	}

	if len(batch) > 0 {
		deadline := s.Now().UTC().Add(s.cfg.ResponseTimeout)
		m.ResponseDeadline = &deadline
		m.SentNotifications += len(batch)
		if err := repo.SaveMission(ctx, m); err != nil {
			return announcement{}, err
		}
		ids := make([]string, len(batch))
		for i, p := range batch {
			ids[i] = p.ID
		}
		err := repo.AppendEvent(ctx, &models.RequestEvent{
			RequestID: req.ID,
			Kind:      kind,
			ActorID:   models.SystemActor,
			Payload:   map[string]any{"reason": reason, "offered": ids},
		})
		if err != nil {
			return announcement{}, err
		}
		return announcement{req: req, from: req.Status, parties: notifications.Parties{Offered: batch}}, nil
	}

	m.ResponseDeadline = nil
	if err := repo.SaveMission(ctx, m); err != nil {
		return announcement{}, err
	}
	from, err := s.move(ctx, repo, req, models.StatusUnmatched, nil, models.SystemActor, kind, map[string]any{"reason": reason})
	if err != nil {
		return announcement{}, err
	}
	err = repo.CreateAlert(ctx, &models.AdminAlert{
		RequestID: &req.ID,
		Kind:      models.AlertAcceptanceTimeout,
		Message:   fmt.Sprintf("No provider accepted %s request in %s: %s", req.ServiceType, req.Location, reason),
	})
	if err != nil {
		return announcement{}, err
	}
	return announcement{req: req, from: from, moved: true}, nil
}

// nextBatch 从排名中取出下一批（最多 TopN 个）仍然合格的 provider，
// 并推进 mission 的通知游标。已不合格的候选从排名中移除。
func (s *Service) nextBatch(ctx context.Context, repo RepositoryInterface, m *models.Mission) ([]*models.Provider, error) {
	remaining := m.Remaining()
	if len(remaining) == 0 {
		return nil, nil
	}
	found, err := repo.FindProviders(ctx, remaining)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Provider, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	keep := m.EligibleProviders[:m.NotifiedCount:m.NotifiedCount]
	var batch []*models.Provider
	for _, id := range remaining {
		p, ok := byID[id]
		if !ok || !p.IsEligible() {
			continue
		}
		keep = append(keep, id)
		if len(batch) < s.cfg.TopN {
			batch = append(batch, p)
		}
	}
	m.EligibleProviders = keep
	m.NotifiedCount += len(batch)
	return batch, nil
}

// ---- 6) 查询 ----

// Candidates 返回手动分配时可选的 provider 列表，位置不匹配的 provider 保留并标记。
func (s *Service) Candidates(ctx context.Context, requestID string) ([]models.ProviderMatch, error) {
	req, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	eligible, err := s.repo.ListEligibleProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Candidates: %w", err)
	}
	return providers.Compatible(req, eligible), nil
}

// GetMission 返回请求的 mission，没有时返回 ErrNotFound。
func (s *Service) GetMission(ctx context.Context, requestID string) (*models.Mission, error) {
	return s.repo.FindMission(ctx, requestID)
}
