package app

import (
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーと回答評価ワーカーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は職務経歴書分析の保持期間切れ削除ジョブを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はPostgreSQLのマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandSignin はサインインを模擬してユーザー同期を実行する。
	CommandSignin Command = "signin"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// commands はサポートするサブコマンドと説明。表示順を保つためスライスで持つ。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "start the API server and the answer evaluation workers (default)"},
	{CommandWorker, "purge resume analyses past the retention period"},
	{CommandMigrate, "apply PostgreSQL schema migrations"},
	{CommandHealthcheck, "probe http://localhost:$SERVER_PORT/health"},
	{CommandSignin, "simulate a sign-in and sync the user to the backend"},
	{CommandHelp, "show this help"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "-h", "--help":
		return CommandHelp
	}
	for _, c := range commands {
		if string(c.cmd) == args[0] {
			return c.cmd
		}
	}
	return CommandServe
}

// writeUsage はサブコマンドの一覧を出力する。
func writeUsage(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "usage: mockprep <command> [flags]\n\ncommands:"); err != nil {
		return err
	}
	for _, c := range commands {
		if _, err := fmt.Fprintf(w, "  %-12s %s\n", c.cmd, c.desc); err != nil {
			return err
		}
	}
	return nil
}
