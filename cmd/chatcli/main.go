// chatcli 聊天室命令列客戶端
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"udg-chat/internal/grpcclient"
	"udg-chat/internal/message"
	"udg-chat/internal/platform/config"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/remote"
	"udg-chat/internal/session"
)

type app struct {
	cfg    *config.Config
	remote *remote.Client
	in     *bufio.Reader
	out    io.Writer
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage(os.Stdout)
		return errors.New("缺少指令")
	}

	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()

	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()
	// 日誌只寫檔案，避免干擾互動畫面
	logger.SetConsole(nil)

	a := &app{
		cfg:    cfg,
		remote: remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout(), cfg.Remote.UploadTimeout()),
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	// 同一次執行的日誌共用 trace ID
	ctx := logger.WithTraceID(context.Background(), logger.NewTraceID())
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "signup":
		if len(rest) < 2 {
			return errors.New("Usage: chatcli signup <email> <nickname>")
		}
		return a.signup(ctx, rest[0], rest[1])

	case "login":
		if len(rest) < 1 {
			return errors.New("Usage: chatcli login <email>")
		}
		return a.login(ctx, rest[0])

	case "logout":
		if err := session.Remove(cfg.Session.TokenFile); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "已登出")
		return nil

	case "rooms":
		return a.rooms(ctx)

	case "new":
		if len(rest) < 2 {
			return errors.New("Usage: chatcli new <peer_id> <STORE|SALE|PURCHASE> [post_id]")
		}
		return a.newRoom(ctx, rest)

	case "open":
		if len(rest) < 1 {
			return errors.New("Usage: chatcli open <room_id>")
		}
		roomID, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil || roomID <= 0 {
			return fmt.Errorf("無效的聊天室 ID: %s", rest[0])
		}
		return a.open(ctx, roomID)

	case "health":
		return a.health(ctx)

	case "help", "--help", "-h":
		usage(a.out)
		return nil
	}

	usage(os.Stderr)
	return fmt.Errorf("未知指令: %s", cmd)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `chatcli - 金飾交易聊天室

Usage: chatcli <command> [options]

Commands:
  signup <email> <nickname>              註冊並登入
  login <email>                          登入
  logout                                 登出
  rooms                                  列出聊天室
  new <peer_id> <type> [post_id]         建立（或取得既有的）聊天室
  open <room_id>                         進入聊天室
  health                                 檢查伺服器 gRPC 健康狀態

Environment:
  ENV          設定檔名稱 (default: local)
  CONFIG_PATH  設定檔路徑 (default: ./configs/$ENV.yaml)
  PASSWORD     密碼（未設定時從標準輸入讀取）`)
}

func (a *app) readPassword() (string, error) {
	if pw := os.Getenv("PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(a.out, "Password: ")
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) signup(ctx context.Context, email, nickname string) error {
	password, err := a.readPassword()
	if err != nil {
		return err
	}
	result, err := a.remote.Signup(ctx, message.SignupRequest{Email: email, Password: password, Nickname: nickname})
	if err != nil {
		return err
	}
	return a.saveSession(result)
}

func (a *app) login(ctx context.Context, email string) error {
	password, err := a.readPassword()
	if err != nil {
		return err
	}
	result, err := a.remote.Login(ctx, message.LoginRequest{Email: email, Password: password})
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			return errors.New("帳號或密碼錯誤")
		}
		return err
	}
	return a.saveSession(result)
}

func (a *app) saveSession(result message.AuthResult) error {
	sess := session.New()
	if err := sess.Login(result.Token, result.User); err != nil {
		return err
	}
	if err := sess.Save(a.cfg.Session.TokenFile); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "已登入：%s (#%d)\n", result.User.Nickname, result.User.ID)
	return nil
}

// session 讀取已保存的登入狀態，過期視同未登入
func (a *app) session() (*session.Session, error) {
	sess, err := session.Load(a.cfg.Session.TokenFile)
	if err != nil {
		if errors.Is(err, session.ErrNotLoggedIn) {
			return nil, errors.New("尚未登入，請先執行 chatcli login")
		}
		return nil, err
	}
	if sess.Expired(time.Now()) {
		return nil, errors.New("登入已過期，請重新登入")
	}
	return sess, nil
}

func (a *app) rooms(ctx context.Context) error {
	sess, err := a.session()
	if err != nil {
		return err
	}
	rooms, err := a.remote.ListRooms(ctx, sess.Token())
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Fprintln(a.out, "目前沒有聊天室")
		return nil
	}
	for _, room := range rooms {
		fmt.Fprintln(a.out, formatRoomLine(room, sess.UserID()))
	}
	return nil
}

func (a *app) newRoom(ctx context.Context, args []string) error {
	sess, err := a.session()
	if err != nil {
		return err
	}

	peerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("無效的用戶 ID: %s", args[0])
	}
	req := message.CreateRoomRequest{PeerID: peerID, Type: message.RoomType(strings.ToUpper(args[1]))}
	if len(args) > 2 {
		postID, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("無效的貼文 ID: %s", args[2])
		}
		req.PostID = &postID
	}

	room, err := a.remote.CreateRoom(ctx, req, sess.Token())
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, formatRoomLine(room, sess.UserID()))
	return nil
}

func (a *app) health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	defer grpcclient.CloseConnection()

	status, err := grpcclient.CheckHealth(ctx, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s\n", net.JoinHostPort(a.cfg.GRPC.Host, a.cfg.GRPC.Port), status)
	return nil
}
