/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package target

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/gostor/iscsitgt/pkg/api"
	"github.com/gostor/iscsitgt/pkg/apiserver/httputils"
	"github.com/gostor/iscsitgt/pkg/port/iscsit"
	"github.com/gostor/iscsitgt/pkg/version"
)

func (r *targetRouter) status() api.TargetStatus {
	cfg := r.backend.Config()
	status := api.TargetStatus{
		TargetIQN:   cfg.TargetIQN,
		TargetAlias: cfg.TargetAlias,
		Portal:      cfg.PortalAddress(),
		Running:     r.backend.Running(),
		Sessions:    len(r.backend.Sessions()),
		LUNs:        len(r.luns.List()),
		CHAP:        cfg.RequiresCHAP(),
		Version:     version.VERSION,
	}
	if addr := r.backend.Addr(); addr != nil {
		status.Portal = addr.String()
	}
	return status
}

func sessionFromInfo(info iscsit.SessionInfo) api.Session {
	return api.Session{
		ID:             info.ID,
		Initiator:      info.Initiator,
		InitiatorAlias: info.InitiatorAlias,
		ChapUser:       info.ChapUser,
		RemoteAddr:     info.RemoteAddr,
		Type:           info.Type.String(),
		Phase:          info.Phase.String(),
		ISID:           fmt.Sprintf("%012x", info.ISID),
		TSIH:           info.TSIH,
		Connected:      info.Connected,
	}
}

func (r *targetRouter) getTargetStatus(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, r.status())
}

func (r *targetRouter) getTargetSessions(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	infos := r.backend.Sessions()
	sessions := make([]api.Session, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, sessionFromInfo(info))
	}
	return httputils.WriteJSON(w, http.StatusOK, sessions)
}

func (r *targetRouter) postTargetSave(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := r.luns.Save(r.configPath); err != nil {
		return fmt.Errorf("save configuration to %s: %v", r.configPath, err)
	}
	log.Infof("configuration saved to %s", r.configPath)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *targetRouter) postTargetStart(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := r.backend.Start(); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, r.status())
}

func (r *targetRouter) postTargetStop(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := r.backend.Stop(); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, r.status())
}
