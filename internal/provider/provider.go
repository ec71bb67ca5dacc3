package provider

import (
	"fmt"
	"path/filepath"

	"github.com/cshum/megacmd/internal/config"
	"github.com/cshum/megacmd/internal/provider/localdrive"
	"github.com/cshum/megacmd/megaapi"
	"github.com/sirupsen/logrus"
)

func GetProvider(providerName string, cfg *config.Config, logger logrus.FieldLogger) (megaapi.API, error) {
	switch providerName {
	case "", "local":
		root := cfg.GetString("drive_root", filepath.Join(cfg.ConfigDir(), "drive"))
		return localdrive.New(root, logger)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}
