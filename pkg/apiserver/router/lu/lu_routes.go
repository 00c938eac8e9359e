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

package lu

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/gostor/iscsitgt/pkg/api"
	"github.com/gostor/iscsitgt/pkg/apiserver/httputils"
	"github.com/gostor/iscsitgt/pkg/config"
	"github.com/gostor/iscsitgt/pkg/scsi"
)

func lunFromInfo(info scsi.LunInfo) api.Lun {
	return api.Lun{
		ID:                info.ID,
		Name:              info.Name,
		Path:              info.Path,
		BackingStore:      info.BackingStore,
		ReadOnly:          info.ReadOnly,
		Size:              info.Size,
		AllowedInitiators: info.AllowedInitiators,
		Ready:             info.Ready,
	}
}

func (r *luRouter) inspect(id uint8) (api.Lun, bool) {
	for _, info := range r.backend.List() {
		if info.ID == id {
			return lunFromInfo(info), true
		}
	}
	return api.Lun{}, false
}

func (r *luRouter) save() error {
	if err := r.backend.Save(r.configPath); err != nil {
		return fmt.Errorf("save configuration to %s: %v", r.configPath, err)
	}
	log.Infof("configuration saved to %s", r.configPath)
	return nil
}

func (r *luRouter) getLunList(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	infos := r.backend.List()
	luns := make([]api.Lun, 0, len(infos))
	for _, info := range infos {
		luns = append(luns, lunFromInfo(info))
	}
	return httputils.WriteJSON(w, http.StatusOK, luns)
}

func (r *luRouter) getLun(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	id, err := httputils.LunIDValue(vars)
	if err != nil {
		return err
	}
	lun, ok := r.inspect(id)
	if !ok {
		return fmt.Errorf("LUN %d not found", id)
	}
	return httputils.WriteJSON(w, http.StatusOK, lun)
}

func (r *luRouter) postLunCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var create api.LunCreateRequest
	if err := httputils.ReadJSON(req, &create); err != nil {
		return err
	}
	if create.Path == "" {
		return fmt.Errorf("bad parameter: LUN path cannot be empty")
	}

	if _, err := r.backend.Add(config.LUN{
		ID:                create.ID,
		Name:              create.Name,
		Path:              create.Path,
		BackingStore:      create.BackingStore,
		ReadOnly:          create.ReadOnly,
		AllowedInitiators: create.AllowedInitiators,
	}); err != nil {
		return err
	}
	if create.Save {
		if err := r.save(); err != nil {
			return err
		}
	}

	lun, _ := r.inspect(create.ID)
	return httputils.WriteJSON(w, http.StatusCreated, lun)
}

func (r *luRouter) deleteLun(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return err
	}
	id, err := httputils.LunIDValue(vars)
	if err != nil {
		return err
	}
	if !r.backend.RemoveLun(id) {
		return fmt.Errorf("LUN %d not found", id)
	}
	if httputils.BoolValue(req, "save") {
		if err := r.save(); err != nil {
			return err
		}
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
