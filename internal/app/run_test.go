package app

import (
	"bytes"
	"testing"
)

// TestRun_ServeCommand_OpensDBConnection はserveコマンドがDB接続を試みることを検証する。
// テスト環境ではDB接続が失敗するため、エラーが返ることを許容する。
func TestRun_ServeCommand_OpensDBConnection(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	// DB接続が存在しないため、エラーが返ることを期待する。
	if err == nil {
		// CI/ローカルにDBがある場合はサーバーが即時終了しないため、ここに到達する可能性がある。
		// しかし通常テスト環境ではDB接続が失敗する。
		t.Log("Run(serve) succeeded - DB is available in test environment")
	}
}

// TestRun_WorkerCommand_OpensDBConnection はworkerコマンドがDB接続を試みることを検証する。
func TestRun_WorkerCommand_OpensDBConnection(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"worker"})
	if err == nil {
		t.Log("Run(worker) succeeded - DB is available in test environment")
	}
}

// TestRun_DefaultCommand_OpensDBConnection はデフォルトコマンド（serve）がDB接続を試みることを検証する。
func TestRun_DefaultCommand_OpensDBConnection(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{})
	if err == nil {
		t.Log("Run([]) succeeded - DB is available in test environment")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

// TestRun_HealthcheckCommand_SkipsFullInit はhealthcheckコマンドが環境変数なしでも
// 実行可能であることを検証する（distroless環境向けの軽量パス）。
func TestRun_HealthcheckCommand_SkipsFullInit(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	// 誰もlistenしていないポートを指定し、設定不足ではなく接続失敗で終わることを確認する
	t.Setenv("SERVER_PORT", "59999")

	var buf bytes.Buffer
	err := Run(&buf, []string{"healthcheck"})
	if err == nil {
		t.Fatal("expected error when no server is listening, got nil")
	}
}
