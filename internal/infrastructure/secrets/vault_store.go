package secrets

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

const (
	valueField     = "value"
	enabledField   = "enabled"
	defaultKVMount = "secret"
)

// VaultStore keeps secrets in a Vault KV v2 mount. The enabled flag lives in
// the secret's custom metadata so that disabling never touches the versions.
type VaultStore struct {
	client *vault.Client
	mount  string
	log    logger.Logger
}

// NewVaultStore creates and configures a Vault-backed store.
func NewVaultStore(cfg *config.VaultConfig, log logger.Logger) (*VaultStore, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return NewVaultStoreWithClient(client, cfg.MountPath, log), nil
}

// NewVaultStoreWithClient wraps an existing client.
func NewVaultStoreWithClient(client *vault.Client, mount string, log logger.Logger) *VaultStore {
	if mount == "" {
		mount = defaultKVMount
	}
	return &VaultStore{client: client, mount: mount, log: log.WithComponent("vault_store")}
}

func (v *VaultStore) Put(ctx context.Context, name, value string) error {
	if name == "" {
		return errors.Validation("secret name is required")
	}
	kv := v.client.KVv2(v.mount)
	if _, err := kv.Put(ctx, name, map[string]interface{}{valueField: value}); err != nil {
		v.log.Error(ctx, "Failed to write secret", err, logger.String("secret", name))
		return errors.TransientUpstream("write secret %s", name).WithCause(err)
	}
	if err := v.setEnabled(ctx, name, true); err != nil {
		return err
	}
	v.log.Info(ctx, "Secret stored", logger.String("secret", name))
	return nil
}

func (v *VaultStore) Get(ctx context.Context, name string) (string, error) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, name)
	if err != nil {
		if stderrors.Is(err, vault.ErrSecretNotFound) {
			return "", errors.NotFound("secret %s not found", name)
		}
		return "", errors.TransientUpstream("read secret %s", name).WithCause(err)
	}
	if !isEnabled(secret.CustomMetadata) {
		return "", errors.Referential("secret %s is disabled", name)
	}
	value, ok := secret.Data[valueField].(string)
	if !ok {
		return "", errors.Upstream("secret %s has no %q field", name, valueField)
	}
	return value, nil
}

func (v *VaultStore) Disable(ctx context.Context, name string) error {
	if _, err := v.client.KVv2(v.mount).Get(ctx, name); err != nil {
		if stderrors.Is(err, vault.ErrSecretNotFound) {
			return errors.NotFound("secret %s not found", name)
		}
		return errors.TransientUpstream("read secret %s", name).WithCause(err)
	}
	if err := v.setEnabled(ctx, name, false); err != nil {
		return err
	}
	v.log.Info(ctx, "Secret disabled", logger.String("secret", name))
	return nil
}

func (v *VaultStore) List(ctx context.Context) ([]SecretInfo, error) {
	listing, err := v.client.Logical().ListWithContext(ctx, v.mount+"/metadata")
	if err != nil {
		return nil, errors.TransientUpstream("list secrets").WithCause(err)
	}
	if listing == nil || listing.Data == nil {
		return []SecretInfo{}, nil
	}
	raw, _ := listing.Data["keys"].([]interface{})

	out := make([]SecretInfo, 0, len(raw))
	for _, k := range raw {
		name, ok := k.(string)
		if !ok {
			continue
		}
		secret, err := v.client.KVv2(v.mount).Get(ctx, name)
		if err != nil {
			if stderrors.Is(err, vault.ErrSecretNotFound) {
				continue
			}
			return nil, errors.TransientUpstream("read secret %s", name).WithCause(err)
		}
		info := SecretInfo{Name: name, Enabled: isEnabled(secret.CustomMetadata)}
		if secret.VersionMetadata != nil {
			info.UpdatedAt = secret.VersionMetadata.CreatedTime
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *VaultStore) setEnabled(ctx context.Context, name string, enabled bool) error {
	err := v.client.KVv2(v.mount).PatchMetadata(ctx, name, vault.KVMetadataPatchInput{
		CustomMetadata: map[string]interface{}{enabledField: fmt.Sprintf("%t", enabled)},
	})
	if err != nil {
		v.log.Error(ctx, "Failed to update secret metadata", err, logger.String("secret", name))
		return errors.TransientUpstream("update secret metadata %s", name).WithCause(err)
	}
	return nil
}

// isEnabled treats a missing flag as enabled so secrets written outside this
// service stay usable.
func isEnabled(meta map[string]interface{}) bool {
	if meta == nil {
		return true
	}
	flag, ok := meta[enabledField]
	if !ok {
		return true
	}
	s, _ := flag.(string)
	return s != "false"
}
