package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandBackfill はバッジのバックフィルを1回だけ実行することを示す。
	CommandBackfill Command = "backfill"
	// CommandSignIn はAPIにサインインして認証状態を表示することを示す。
	CommandSignIn Command = "signin"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "backfill":
		return CommandBackfill
	case "signin":
		return CommandSignIn
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// commandArgs はサブコマンド名を除いた引数を返す。
// サブコマンドが省略された場合は空を返す。
func commandArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	switch Command(args[0]) {
	case CommandServe, CommandWorker, CommandMigrate, CommandBackfill, CommandSignIn, CommandHealthcheck:
		return args[1:]
	default:
		return nil
	}
}
