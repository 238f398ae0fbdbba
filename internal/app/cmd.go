package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はBFFサーバーとして起動する。
	CommandServe Command = "serve"
	// CommandMigrate はclient_storageテーブルのマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を確認する。
	// distrolessイメージのHEALTHCHECKから呼び出す。
	CommandHealthcheck Command = "healthcheck"
	// CommandCleanup は古いデバイスデータの削除を一度だけ実行して終了する。
	// 常駐サーバーを持たない環境でcronから呼び出す。
	CommandCleanup Command = "cleanup"
)

// commands はサブコマンド名と起動モードの対応表。
var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
	string(CommandCleanup):     CommandCleanup,
}

// ParseCommand は先頭の引数からサブコマンドを解析する。
// 引数なし、または未知のサブコマンドはCommandServeとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// needsConfig はサブコマンドが環境変数の設定一式を必要とするかを返す。
// healthcheckはSERVER_PORTだけを参照する。
func (c Command) needsConfig() bool {
	return c != CommandHealthcheck
}
