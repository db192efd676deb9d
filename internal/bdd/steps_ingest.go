package bdd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chirino/chatmap-ingest/internal/cmd/cliflags"
	"github.com/chirino/chatmap-ingest/internal/cmd/export"
	"github.com/chirino/chatmap-ingest/internal/cmd/share"
	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/decrypt"
	"github.com/chirino/chatmap-ingest/internal/media"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/chirino/chatmap-ingest/internal/service"
	"github.com/chirino/chatmap-ingest/internal/testutil/cucumber"
	"github.com/cucumber/godog"
	goredis "github.com/redis/go-redis/v9"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		is := &ingestSteps{TestScenario: s}
		ctx.Step(`^the connector appends to the stream of "([^"]*)":$`, is.theConnectorAppends)
		ctx.Step(`^a poll cycle runs$`, is.aPollCycleRuns)
		ctx.Step(`^I export the map of "([^"]*)"$`, is.iExportTheMapOf)
		ctx.Step(`^I export the public map \${([^}]*)}$`, is.iExportThePublicMap)
		ctx.Step(`^"([^"]*)" toggles the sharing of their map$`, is.togglesSharing)
		ctx.Step(`^the media key of "([^"]*)" for "([^"]*)" is stored as \${([^}]*)}$`, is.theMediaKeyIsStored)
	})
}

type ingestSteps struct {
	*cucumber.TestScenario
}

func (s *ingestSteps) cfg() *config.Config {
	return s.Suite.Context.(*config.Config)
}

func (s *ingestSteps) ctx() context.Context {
	return config.WithContext(s.Context, s.cfg())
}

// theConnectorAppends writes one stream entry per table row the way the chat
// connectors do; a "text" column is encrypted with the configured key.
func (s *ingestSteps) theConnectorAppends(owner string, table *godog.Table) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("expected a header row and at least one entry")
	}
	client := s.Suite.Extra["redis"].(goredis.UniversalClient)
	dec, err := decrypt.New(s.ctx(), s.cfg())
	if err != nil {
		return err
	}

	header := table.Rows[0].Cells
	for _, row := range table.Rows[1:] {
		values := map[string]interface{}{}
		for i, cell := range row.Cells {
			if cell.Value == "" {
				continue
			}
			v, err := s.Expand(cell.Value)
			if err != nil {
				return err
			}
			if header[i].Value == "text" {
				if v, err = dec.EncryptText(v); err != nil {
					return err
				}
			}
			values[header[i].Value] = v
		}
		err := client.XAdd(s.Context, &goredis.XAddArgs{
			Stream: "messages:" + owner,
			Values: values,
		}).Err()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *ingestSteps) aPollCycleRuns() error {
	poller := s.Suite.Extra["poller"].(*service.Poller)
	res := poller.RunOnce(s.ctx())
	body, err := json.Marshal(res)
	if err != nil {
		return err
	}
	s.SetResponse(http.StatusOK, body)
	return nil
}

func (s *ingestSteps) withStore(fn func(registrystore.PointStore, *bytes.Buffer) error) error {
	store, err := cliflags.OpenStore(s.ctx(), s.cfg())
	if err != nil {
		return err
	}
	defer store.Close()

	var out bytes.Buffer
	err = fn(store, &out)
	var nf *registrystore.NotFoundError
	switch {
	case errors.As(err, &nf):
		s.SetResponse(http.StatusNotFound, []byte(err.Error()))
	case err != nil:
		return err
	default:
		s.SetResponse(http.StatusOK, out.Bytes())
	}
	return nil
}

func (s *ingestSteps) iExportTheMapOf(owner string) error {
	return s.withStore(func(store registrystore.PointStore, out *bytes.Buffer) error {
		return export.Run(s.ctx(), store, out, export.Options{Owner: owner})
	})
}

func (s *ingestSteps) iExportThePublicMap(variable string) error {
	id, err := s.ResolveString(variable)
	if err != nil {
		return err
	}
	return s.withStore(func(store registrystore.PointStore, out *bytes.Buffer) error {
		return export.Run(s.ctx(), store, out, export.Options{MapID: id, Public: true})
	})
}

func (s *ingestSteps) togglesSharing(owner string) error {
	return s.withStore(func(store registrystore.PointStore, out *bytes.Buffer) error {
		return share.Run(s.ctx(), store, out, owner, "")
	})
}

func (s *ingestSteps) theMediaKeyIsStored(reference, owner, name string) error {
	s.Variables[name] = media.Key(reference, owner)
	return nil
}
