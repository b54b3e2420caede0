package admin

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/haven-chat/signalroom/internal/appeal"
	"github.com/haven-chat/signalroom/internal/ban"
	"github.com/haven-chat/signalroom/internal/database"
)

func newTestServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	view, rdb, db := newTestView(t)

	banStore := ban.NewStore(rdb)
	bansStore := database.NewBansStore(db)
	appealStore := appeal.NewStore(db)

	return NewServer(view, bansStore, banStore, appealStore), db
}

func TestServer_CreateAndDeleteBan(t *testing.T) {
	server, db := newTestServer(t)
	router := server.Router()
	ctx := context.Background()
	t.Cleanup(func() { db.ExecContext(ctx, "DELETE FROM banned_ips WHERE ip_address = $1", "198.51.100.99") })

	body, _ := json.Marshal(map[string]interface{}{
		"ipAddress": "198.51.100.99",
		"reason":    "spam",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/bans", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created database.BanRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/api/admin/bans/"+strconv.FormatInt(created.ID, 10), nil)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", delRec.Code, delRec.Body.String())
	}
}

func TestServer_CheckBanUsesCallerAddressNotQueryParam(t *testing.T) {
	server, db := newTestServer(t)
	router := server.Router()
	ctx := context.Background()
	bannedIP := "198.51.100.96"
	spoofedIP := "198.51.100.95"
	t.Cleanup(func() { db.ExecContext(ctx, "DELETE FROM banned_ips WHERE ip_address = $1", bannedIP) })

	body, _ := json.Marshal(map[string]interface{}{"ipAddress": bannedIP, "reason": "spam"})
	banReq := httptest.NewRequest(http.MethodPost, "/api/admin/bans", bytes.NewReader(body))
	banRec := httptest.NewRecorder()
	router.ServeHTTP(banRec, banReq)
	if banRec.Code != http.StatusCreated {
		t.Fatalf("expected ban creation to succeed, got %d: %s", banRec.Code, banRec.Body.String())
	}

	// A caller connecting from bannedIP, even if it names a different,
	// unbanned address in a query parameter, must see its own ban status.
	req := httptest.NewRequest(http.MethodGet, "/api/check-ban?ip="+spoofedIP, nil)
	req.Header.Set("X-Forwarded-For", bannedIP)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode check-ban: %v", err)
	}
	if banned, _ := result["banned"].(bool); !banned {
		t.Fatalf("expected banned=true for caller's own forwarded address, got %+v", result)
	}
}

func TestServer_CreateBanDuplicateConflicts(t *testing.T) {
	server, db := newTestServer(t)
	router := server.Router()
	ctx := context.Background()
	t.Cleanup(func() { db.ExecContext(ctx, "DELETE FROM banned_ips WHERE ip_address = $1", "198.51.100.98") })

	body, _ := json.Marshal(map[string]interface{}{"ipAddress": "198.51.100.98", "reason": "spam"})
	req1 := httptest.NewRequest(http.MethodPost, "/api/admin/bans", bytes.NewReader(body))
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("expected first create to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/admin/bans", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate ban, got %d", rec2.Code)
	}
}

func TestServer_AppealApprovalRemovesBan(t *testing.T) {
	server, db := newTestServer(t)
	router := server.Router()
	ctx := context.Background()
	ip := "198.51.100.97"
	t.Cleanup(func() {
		db.ExecContext(ctx, "DELETE FROM banned_ips WHERE ip_address = $1", ip)
		db.ExecContext(ctx, "DELETE FROM ban_appeals WHERE ip_address = $1", ip)
	})

	banBody, _ := json.Marshal(map[string]interface{}{"ipAddress": ip, "reason": "spam"})
	banReq := httptest.NewRequest(http.MethodPost, "/api/admin/bans", bytes.NewReader(banBody))
	banRec := httptest.NewRecorder()
	router.ServeHTTP(banRec, banReq)
	if banRec.Code != http.StatusCreated {
		t.Fatalf("expected ban creation to succeed, got %d: %s", banRec.Code, banRec.Body.String())
	}

	appealBody, _ := json.Marshal(map[string]interface{}{
		"ipAddress": ip,
		"email":     "appellant@example.com",
		"reason":    "wrongly flagged",
	})
	appealReq := httptest.NewRequest(http.MethodPost, "/api/appeals", bytes.NewReader(appealBody))
	appealRec := httptest.NewRecorder()
	router.ServeHTTP(appealRec, appealReq)
	if appealRec.Code != http.StatusCreated {
		t.Fatalf("expected appeal creation to succeed, got %d: %s", appealRec.Code, appealRec.Body.String())
	}
	var created appeal.Appeal
	if err := json.Unmarshal(appealRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode appeal: %v", err)
	}

	patchBody, _ := json.Marshal(map[string]interface{}{"status": appeal.StatusApproved, "notes": "confirmed mistaken"})
	patchReq := httptest.NewRequest(http.MethodPatch, "/api/admin/appeals/"+strconv.FormatInt(created.ID, 10), bytes.NewReader(patchBody))
	patchRec := httptest.NewRecorder()
	router.ServeHTTP(patchRec, patchReq)
	if patchRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on approval, got %d: %s", patchRec.Code, patchRec.Body.String())
	}

	checkReq := httptest.NewRequest(http.MethodGet, "/api/check-ban", nil)
	checkReq.Header.Set("X-Forwarded-For", ip)
	checkRec := httptest.NewRecorder()
	router.ServeHTTP(checkRec, checkReq)
	var result map[string]interface{}
	if err := json.Unmarshal(checkRec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode check-ban: %v", err)
	}
	if banned, _ := result["banned"].(bool); banned {
		t.Fatalf("expected ban to be lifted after appeal approval, got %+v", result)
	}
}
