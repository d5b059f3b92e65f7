package db

import (
	"time"

	"github.com/liuran001/MuzmoBot-Go/bot"
	"gorm.io/gorm"
)

// SongInfoModel mirrors the song_infos schema. One row per delivered item.
type SongInfoModel struct {
	gorm.Model
	ItemID        string `gorm:"not null;uniqueIndex"`
	DisplayName   string
	DurationLabel string
	Performer     string
	Title         string
	FileName      string
	MusicSize     int64
	FileID        string `gorm:"index"`
	Delivery      string
	FromUserID    int64
	FromUserName  string
	FromChatID    int64
	FromChatName  string
}

func (SongInfoModel) TableName() string {
	return "song_infos"
}

// BotStatModel stores aggregated bot statistics.
type BotStatModel struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null"`
	Value int64
}

func (BotStatModel) TableName() string {
	return "bot_stats"
}

func toInternal(model SongInfoModel) *bot.SongInfo {
	return &bot.SongInfo{
		ID:            model.ID,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
		DeletedAt:     deletedAtPtr(model.DeletedAt),
		ItemID:        model.ItemID,
		DisplayName:   model.DisplayName,
		DurationLabel: model.DurationLabel,
		Performer:     model.Performer,
		Title:         model.Title,
		FileName:      model.FileName,
		MusicSize:     model.MusicSize,
		FileID:        model.FileID,
		Delivery:      model.Delivery,
		FromUserID:    model.FromUserID,
		FromUserName:  model.FromUserName,
		FromChatID:    model.FromChatID,
		FromChatName:  model.FromChatName,
	}
}

func toModel(info *bot.SongInfo) *SongInfoModel {
	if info == nil {
		return &SongInfoModel{}
	}

	model := &SongInfoModel{
		ItemID:        info.ItemID,
		DisplayName:   info.DisplayName,
		DurationLabel: info.DurationLabel,
		Performer:     info.Performer,
		Title:         info.Title,
		FileName:      info.FileName,
		MusicSize:     info.MusicSize,
		FileID:        info.FileID,
		Delivery:      info.Delivery,
		FromUserID:    info.FromUserID,
		FromUserName:  info.FromUserName,
		FromChatID:    info.FromChatID,
		FromChatName:  info.FromChatName,
	}

	if info.ID != 0 {
		model.ID = info.ID
	}
	if !info.CreatedAt.IsZero() {
		model.CreatedAt = info.CreatedAt
	}
	if !info.UpdatedAt.IsZero() {
		model.UpdatedAt = info.UpdatedAt
	}
	if info.DeletedAt != nil {
		model.DeletedAt = gorm.DeletedAt{Time: *info.DeletedAt, Valid: true}
	}

	return model
}

func deletedAtPtr(value gorm.DeletedAt) *time.Time {
	if value.Valid {
		return &value.Time
	}
	return nil
}
