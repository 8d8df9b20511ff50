package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/store"
	"github.com/hitoshi/mockprep/internal/validate"
)

// ResumeSlotPrefix は分析結果を保存するスロット名の接頭辞。
// 分析結果ごとに "resume-analysis:<id>" のスロットを1つ使用する。
const ResumeSlotPrefix = "resume-analysis:"

// SlotResumeRepo はスロットストレージを使用した職務経歴書分析リポジトリ。
// 読み出し時に形式を検証し、壊れたスロットは存在しないものとして扱う。
type SlotResumeRepo struct {
	slots  store.SlotStorage
	logger *slog.Logger
}

// NewSlotResumeRepo はSlotResumeRepoを生成する。
func NewSlotResumeRepo(slots store.SlotStorage, logger *slog.Logger) *SlotResumeRepo {
	return &SlotResumeRepo{slots: slots, logger: logger}
}

// Save は分析結果を保存する。
func (r *SlotResumeRepo) Save(ctx context.Context, analysis *model.ResumeAnalysis) error {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("分析結果の直列化に失敗しました: %w", err)
	}
	if err := r.slots.Put(ctx, ResumeSlotPrefix+analysis.ID, raw); err != nil {
		return fmt.Errorf("分析結果の保存に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの分析結果を取得する。見つからない場合はnilを返す。
func (r *SlotResumeRepo) FindByID(ctx context.Context, id string) (*model.ResumeAnalysis, error) {
	return r.load(ctx, ResumeSlotPrefix+id), nil
}

// ListByOwner は所有者の分析結果を作成日時の降順で返す。
func (r *SlotResumeRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.ResumeAnalysis, error) {
	keys, err := r.slots.Keys(ctx, ResumeSlotPrefix)
	if err != nil {
		r.logger.Warn("分析結果スロットの一覧取得に失敗したため空として扱います",
			slog.String("error", err.Error()),
		)
		return []*model.ResumeAnalysis{}, nil
	}

	analyses := make([]*model.ResumeAnalysis, 0, len(keys))
	for _, key := range keys {
		a := r.load(ctx, key)
		if a == nil || a.OwnerID != ownerID {
			continue
		}
		analyses = append(analyses, a)
	}

	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
	})
	return analyses, nil
}

// Delete は指定IDの分析結果を削除し、削除したかどうかを返す。
func (r *SlotResumeRepo) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := r.slots.Delete(ctx, ResumeSlotPrefix+id)
	if err != nil {
		return false, fmt.Errorf("分析結果の削除に失敗しました: %w", err)
	}
	return deleted, nil
}

// load はスロットを読み出して検証する。読み出し失敗や形式不正はnilとして扱う。
func (r *SlotResumeRepo) load(ctx context.Context, key string) *model.ResumeAnalysis {
	raw, err := r.slots.Get(ctx, key)
	if err != nil {
		r.logger.Warn("分析結果スロットの読み込みに失敗しました",
			slog.String("slot", key),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if raw == nil {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil || !validate.IsResumeAnalysis(v) {
		r.logger.Warn("分析結果スロットの形式が不正なため無視します", slog.String("slot", key))
		return nil
	}

	analysis := &model.ResumeAnalysis{}
	if err := json.Unmarshal(raw, analysis); err != nil {
		return nil
	}
	// スロット名とIDが食い違うデータは信用しない
	if key != ResumeSlotPrefix+analysis.ID {
		return nil
	}
	return analysis
}

// compile-time interface check
var _ ResumeRepository = (*SlotResumeRepo)(nil)
