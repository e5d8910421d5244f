package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"udg-chat/internal/chatroom"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/push"
)

// command 聊天室內輸入的一行
type command struct {
	name string // 空字串代表一般訊息
	args []string
	text string
}

// parseCommand 解析輸入行；/edit 的第二個參數之後保留原文
func parseCommand(line string) command {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "/") {
		return command{text: line}
	}

	fields := strings.Fields(line)
	cmd := command{name: strings.TrimPrefix(fields[0], "/"), args: fields[1:]}
	if cmd.name == "edit" && len(fields) > 2 {
		rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		cmd.args = []string{fields[1]}
		cmd.text = rest
	}
	return cmd
}

func (a *app) open(ctx context.Context, roomID int64) error {
	sess, err := a.session()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chatCfg := a.cfg.Chat
	minBackoff, maxBackoff := chatCfg.ReconnectBounds()

	// 推播連線失敗時仍可使用，只是沒有即時更新
	var signaler chatroom.Signaler
	var events <-chan push.Event
	conn, err := push.Dial(ctx, push.Options{
		URL:          a.cfg.Remote.WebSocketURL,
		Tokens:       sess,
		EventBuffer:  chatCfg.EventBuffer,
		ReconnectMin: minBackoff,
		ReconnectMax: maxBackoff,
	})
	if err != nil {
		logger.Warning(ctx, "推播連線失敗", logger.WithRoomID(roomID), logger.WithError(err))
		fmt.Fprintf(a.out, "（推播連線失敗，訊息不會即時更新：%v）\n", err)
	} else {
		defer conn.Close()
		signaler = conn
		events = conn.Events()
	}

	client := chatroom.New(roomID, sess, a.remote, signaler,
		chatroom.WithTypingDelay(chatCfg.TypingStopDelay()),
		chatroom.WithDeletedPlaceholder(chatCfg.DeletedPlaceholder),
		chatroom.WithMaxMessageLength(chatCfg.MaxMessageLength),
	)
	if err := client.LoadInitial(ctx); err != nil {
		return err
	}
	defer client.Close(context.Background())

	var wg sync.WaitGroup
	if events != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = client.Run(ctx, events)
		}()
	}

	view := &roomView{out: a.out, userID: sess.UserID()}
	view.render(client)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Changes():
				view.render(client)
			}
		}
	}()

	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		cmd := parseCommand(scanner.Text())
		if cmd.name == "quit" {
			break
		}
		if err := a.exec(ctx, client, cmd); err != nil {
			view.notice(err.Error())
		}
	}

	cancel()
	wg.Wait()
	return scanner.Err()
}

func (a *app) exec(ctx context.Context, client *chatroom.Client, cmd command) error {
	switch cmd.name {
	case "":
		if strings.TrimSpace(cmd.text) == "" {
			return nil
		}
		client.NotifyTyping(true)
		_, err := client.Send(ctx, cmd.text, nil)
		client.NotifyTyping(false)
		return err

	case "file":
		if len(cmd.args) < 1 {
			return errors.New("Usage: /file <path>")
		}
		return sendFile(ctx, client, cmd.args[0])

	case "edit":
		if len(cmd.args) < 1 || cmd.text == "" {
			return errors.New("Usage: /edit <id> <text>")
		}
		id, err := strconv.ParseInt(cmd.args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("無效的訊息 ID: %s", cmd.args[0])
		}
		_, err = client.Edit(ctx, id, cmd.text)
		return err

	case "delete":
		if len(cmd.args) < 1 {
			return errors.New("Usage: /delete <id>")
		}
		id, err := strconv.ParseInt(cmd.args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("無效的訊息 ID: %s", cmd.args[0])
		}
		return client.Delete(ctx, id)

	case "retry":
		if len(cmd.args) < 1 {
			return errors.New("Usage: /retry <temp_id>")
		}
		_, err := client.Retry(ctx, cmd.args[0])
		return err

	case "discard":
		if len(cmd.args) < 1 {
			return errors.New("Usage: /discard <temp_id>")
		}
		return client.Discard(cmd.args[0])

	case "refresh":
		_, err := client.RefreshRoom(ctx)
		return err
	}
	return fmt.Errorf("未知指令: /%s", cmd.name)
}

func sendFile(ctx context.Context, client *chatroom.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = client.Send(ctx, "", &chatroom.Attachment{FileName: name, ContentType: contentType, Body: f})
	return err
}
