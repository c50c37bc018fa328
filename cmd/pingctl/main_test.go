package main

import "testing"

func TestBuildRequestActions(t *testing.T) {
	req, err := buildRequest("status", "", 0)
	if err != nil || req.Action != "status" {
		t.Fatalf("status request: %+v err=%v", req, err)
	}

	req, err = buildRequest("list_accounts", "", 5)
	if err != nil || req.Limit != 5 {
		t.Fatalf("list request: %+v err=%v", req, err)
	}

	req, err = buildRequest("account", " lp1abc ", 0)
	if err != nil || req.Principal != "lp1abc" {
		t.Fatalf("account request: %+v err=%v", req, err)
	}

	if _, err := buildRequest("account", "", 0); err == nil {
		t.Fatalf("expected missing principal error")
	}
	if _, err := buildRequest("teleport", "", 0); err == nil {
		t.Fatalf("expected unknown action error")
	}
}
