package handler

import (
	"context"
	"os"
	"path/filepath"

	botpkg "github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/liuran001/MuzmoBot-Go/bot/transfer"
	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoutil"
)

const (
	actionRecordVoice    = "record_voice"
	actionUploadDocument = "upload_document"
)

// chatDeliverer sends audio into one chat as a reply to replyTo.
type chatDeliverer struct {
	bot     *telego.Bot
	upload  *telego.Bot
	rl      *telegram.RateLimiter
	logger  botpkg.Logger
	chatID  int64
	replyTo int
}

func (d *chatDeliverer) DeliverRemote(ctx context.Context, url string, meta transfer.AudioMeta) (*transfer.Delivery, error) {
	return d.send(ctx, d.bot, telego.InputFile{URL: url}, meta)
}

func (d *chatDeliverer) DeliverFile(ctx context.Context, path string, meta transfer.AudioMeta) (*transfer.Delivery, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	d.chatAction(ctx, actionUploadDocument)
	name := meta.FileName
	if name == "" {
		name = filepath.Base(path)
	}
	b := d.upload
	if b == nil {
		b = d.bot
	}
	return d.send(ctx, b, telego.InputFile{File: telegoutil.NameReader(file, name)}, meta)
}

func (d *chatDeliverer) DeliverCached(ctx context.Context, fileID string, meta transfer.AudioMeta) (*transfer.Delivery, error) {
	return d.send(ctx, d.bot, telego.InputFile{FileID: fileID}, meta)
}

// Staging is called when the file has to be downloaded before upload.
func (d *chatDeliverer) Staging(ctx context.Context) {
	d.chatAction(ctx, actionRecordVoice)
}

func (d *chatDeliverer) send(ctx context.Context, b *telego.Bot, audio telego.InputFile, meta transfer.AudioMeta) (*transfer.Delivery, error) {
	params := &telego.SendAudioParams{
		ChatID:    telego.ChatID{ID: d.chatID},
		Audio:     audio,
		Performer: meta.Performer,
		Title:     meta.Title,
	}
	if d.replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: d.replyTo, AllowSendingWithoutReply: true}
	}

	var (
		msg *telego.Message
		err error
	)
	if d.rl != nil {
		msg, err = telegram.SendAudioWithRetry(ctx, d.rl, b, params)
	} else {
		msg, err = b.SendAudio(ctx, params)
	}
	if err != nil {
		return nil, err
	}
	return &transfer.Delivery{FileID: sentFileID(msg)}, nil
}

func (d *chatDeliverer) chatAction(ctx context.Context, action string) {
	params := &telego.SendChatActionParams{ChatID: telego.ChatID{ID: d.chatID}, Action: action}
	var err error
	if d.rl != nil {
		err = telegram.SendChatActionWithRetry(ctx, d.rl, d.bot, params)
	} else {
		err = d.bot.SendChatAction(ctx, params)
	}
	if err != nil && d.logger != nil {
		d.logger.Debug("chat action failed", "chat_id", d.chatID, "action", action, "error", err)
	}
}

// sentFileID picks the file id Telegram assigned; files it does not
// recognise as audio come back as documents.
func sentFileID(msg *telego.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.Audio != nil:
		return msg.Audio.FileID
	case msg.Document != nil:
		return msg.Document.FileID
	default:
		return ""
	}
}
