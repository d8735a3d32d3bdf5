package assignment

import (
	"sort"

	"family-booking/internal/models"
	"family-booking/internal/modules/providers"
	"family-booking/pkg/matching"
)

// ranked 是一个通过资格过滤、带有匹配分数的候选 provider。
type ranked struct {
	provider  *models.Provider
	score     float64
	textMatch bool
}

// rank 将匹配引擎返回的候选与 provider 目录合并，丢弃不存在或不合格的 provider，
// 并按以下规则排序（全序，结果稳定）：
//  1. 匹配分数降序
//  2. coverage 文本匹配优先于仅邮编匹配
//  3. performance score 降序
//  4. provider id 升序
func rank(req *models.ServiceRequest, candidates []matching.Candidate, directory []*models.Provider) []ranked {
	byID := make(map[string]*models.Provider, len(directory))
	for _, p := range directory {
		byID[p.ID] = p
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		p, ok := byID[c.ProviderID]
		if !ok || !p.IsEligible() || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		text, _ := providers.LocationMatch(p, req)
		out = append(out, ranked{provider: p, score: c.Score, textMatch: text})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.textMatch != b.textMatch {
			return a.textMatch
		}
		if a.provider.PerformanceScore != b.provider.PerformanceScore {
			return a.provider.PerformanceScore > b.provider.PerformanceScore
		}
		return a.provider.ID < b.provider.ID
	})
	return out
}

func rankedIDs(rs []ranked) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.provider.ID
	}
	return ids
}

func candidateIDs(cs []matching.Candidate) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ProviderID)
	}
	return ids
}
