package repository

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/store"
)

func newResumeRepo(t *testing.T) (*SlotResumeRepo, *store.MemorySlots) {
	t.Helper()
	var buf bytes.Buffer
	slots := store.NewMemorySlots()
	return NewSlotResumeRepo(slots, slog.New(slog.NewJSONHandler(&buf, nil))), slots
}

func sampleAnalysis(id, owner string, createdAt time.Time) *model.ResumeAnalysis {
	return &model.ResumeAnalysis{
		ID:          id,
		OwnerID:     owner,
		CompanyName: "Acme",
		JobTitle:    "SRE",
		Feedback: model.ResumeFeedback{
			OverallScore: 70,
			ATS:          model.ATSScore{Score: 80, Tips: []model.Suggestion{{Type: "good", Tip: "Clear"}}},
			ToneAndStyle: model.CategoryScore{Score: 60, Feedback: []string{}},
			Content:      model.CategoryScore{Score: 60, Feedback: []string{}},
			Structure:    model.CategoryScore{Score: 60, Feedback: []string{}},
			Skills:       model.CategoryScore{Score: 60, Feedback: []string{}},
		},
		CreatedAt: createdAt,
	}
}

func TestSlotResumeRepo_SaveFindDelete(t *testing.T) {
	repo, slots := newResumeRepo(t)
	ctx := context.Background()

	a := sampleAnalysis("resume-1", "u1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := repo.Save(ctx, a); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	raw, _ := slots.Get(ctx, "resume-analysis:resume-1")
	if raw == nil {
		t.Fatal("分析結果ごとのスロットに保存されていない")
	}

	found, err := repo.FindByID(ctx, "resume-1")
	if err != nil || found == nil || found.OwnerID != "u1" || found.Feedback.ATS.Score != 80 {
		t.Fatalf("FindByID = %+v, %v", found, err)
	}

	deleted, err := repo.Delete(ctx, "resume-1")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	if found, _ := repo.FindByID(ctx, "resume-1"); found != nil {
		t.Error("削除後も取得できてしまった")
	}
}

func TestSlotResumeRepo_CorruptSlotIsIgnored(t *testing.T) {
	repo, slots := newResumeRepo(t)
	ctx := context.Background()

	_ = slots.Put(ctx, "resume-analysis:broken", []byte(`{"id":"broken","ownerId":"u1"`))
	_ = slots.Put(ctx, "resume-analysis:foreign", []byte(`{"id":"foreign","ownerId":"u1","feedback":{}}`))
	_ = repo.Save(ctx, sampleAnalysis("ok", "u1", time.Now()))

	if found, err := repo.FindByID(ctx, "broken"); err != nil || found != nil {
		t.Errorf("FindByID(broken) = %+v, %v; want nil, nil", found, err)
	}

	list, err := repo.ListByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByOwner error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "ok" {
		t.Errorf("ListByOwner = %+v, want only ok", list)
	}
}

func TestSlotResumeRepo_ListByOwnerNewestFirst(t *testing.T) {
	repo, _ := newResumeRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = repo.Save(ctx, sampleAnalysis("resume-a", "u1", base))
	_ = repo.Save(ctx, sampleAnalysis("resume-b", "u1", base.Add(time.Hour)))
	_ = repo.Save(ctx, sampleAnalysis("resume-c", "u2", base.Add(2*time.Hour)))

	list, _ := repo.ListByOwner(ctx, "u1")
	if len(list) != 2 || list[0].ID != "resume-b" || list[1].ID != "resume-a" {
		t.Errorf("ListByOwner = %+v", list)
	}
}
