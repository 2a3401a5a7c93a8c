package postclaim

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/metrics"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
	"github.com/cryptogift-wallets/giftclaim/pkg/transport"
	"github.com/cryptogift-wallets/giftclaim/pkg/wallet"
)

// DefaultWarmupAttempts is the metadata warm-up poll ceiling
const DefaultWarmupAttempts = 5

// AssetType is the token standard announced to wallets
const AssetType = "ERC721"

// Registration results, used as metric labels
const (
	resultRegistered  = "registered"
	resultBenign      = "benign"
	resultUnsupported = "unsupported"
	resultFailed      = "failed"
)

const declinedMessage = "You chose not to add the gift to your wallet view. It is still yours; you can add it later from the wallet's NFT tab."

// wallet responses that are known defects rather than real failures
var benignWatchPatterns = []string{
	"unable to verify ownership",
	"already",
	"not owned",
	"invalid token id",
}

// Registrar asks the wallet to display a claimed asset once its metadata is warm
type Registrar struct {
	resolver MetadataResolver
	timings  device.TimingSet
	maxPolls int
	logger   logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRegistrar creates a registrar
func NewRegistrar(resolver MetadataResolver, timings device.TimingSet, maxPolls int, log logger.Logger) *Registrar {
	if maxPolls <= 0 {
		maxPolls = DefaultWarmupAttempts
	}
	return &Registrar{
		resolver: resolver,
		timings:  timings,
		maxPolls: maxPolls,
		logger:   log,
		sleep:    device.Sleep,
	}
}

// Watch hands a warmed registration to the wallet's watch capability. It never fails: every
// outcome, including wallet errors, is described by the returned registration. Only this step
// uses the wallet.
func (r *Registrar) Watch(ctx context.Context, reg models.DisplayRegistration, handle wallet.Handle, profile device.Profile) models.DisplayRegistration {
	watchCtx, cancel := context.WithTimeout(ctx, r.timings.For(profile).SubmitTimeout)
	defer cancel()
	ok, err := handle.WatchAsset(watchCtx, reg.Asset)
	result := r.interpret(&reg, ok, err)
	metrics.DisplayRegistrations.WithLabelValues(string(reg.Warmup), result).Inc()
	switch result {
	case resultRegistered:
		r.logger.InfoWith(logger.Watch, "Asset %s registered with the wallet (warm-up %s after %d polls)", reg.Asset.TokenID, reg.Warmup, reg.Polls)
	case resultFailed:
		r.logger.ErrorWith(logger.Watch, "Asset %s display registration failed: %v", reg.Asset.TokenID, err)
	default:
		r.logger.NoticeWith(logger.Watch, "Asset %s display registration %s: %s", reg.Asset.TokenID, result, reg.Message)
	}
	return reg
}

// WarmUp polls the resolver: Placeholder, then Warming on each poll, until Ready or GaveUp.
// It only talks to the backend.
func (r *Registrar) WarmUp(ctx context.Context, asset models.AssetInfo, profile device.Profile) models.DisplayRegistration {
	t := r.timings.For(profile)
	reg := models.DisplayRegistration{
		Warmup: models.WarmupPlaceholder,
		Asset: models.AssetSpec{
			Type:    AssetType,
			Address: asset.ContractAddress,
			TokenID: asset.TokenID,
			Image:   asset.Image,
		},
	}

	for poll := 1; poll <= r.maxPolls; poll++ {
		reg.Warmup = models.WarmupWarming
		reg.Polls = poll

		resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
		md, err := r.resolver.ResolveMetadata(resolveCtx, asset.ContractAddress, asset.TokenID)
		cancel()

		if err == nil && IsReady(md) {
			reg.Warmup = models.WarmupReady
			reg.Asset.Image = md.Image
			return reg
		}
		if err != nil {
			r.logger.DebugWith(logger.Watch, "Warm-up poll %d for asset %s failed: %v", poll, asset.TokenID, err)
		} else {
			r.logger.DebugWith(logger.Watch, "Warm-up poll %d for asset %s still shows placeholder data", poll, asset.TokenID)
		}

		if poll == r.maxPolls {
			break
		}
		if err := r.sleep(ctx, t.WarmupBackoff*time.Duration(poll)); err != nil {
			break
		}
	}

	reg.Warmup = models.WarmupGaveUp
	r.logger.NoticeWith(logger.Watch, "Metadata for asset %s not ready after %d polls, registering anyway", asset.TokenID, reg.Polls)
	return reg
}

func (r *Registrar) interpret(reg *models.DisplayRegistration, ok bool, err error) string {
	if err == nil {
		if ok {
			reg.Registered = true
			reg.Message = "The gift was added to your wallet."
			return resultRegistered
		}
		reg.Benign = true
		reg.Message = declinedMessage
		return resultBenign
	}

	class := transport.Classify(err)
	var pe *wallet.ProviderError
	if errors.As(err, &pe) && pe.Code == transport.CodeUnsupportedMethod {
		reg.Message = "This wallet cannot display assets automatically. Import the gift manually with the contract address and token id shown."
		return resultUnsupported
	}
	if class.Reason == models.ReasonUserRejected {
		reg.Benign = true
		reg.Message = declinedMessage
		return resultBenign
	}
	msg := strings.ToLower(err.Error())
	for _, p := range benignWatchPatterns {
		if strings.Contains(msg, p) {
			reg.Benign = true
			reg.Message = "Your wallet could not show the gift yet. It is safely in your account and will appear once the wallet refreshes its NFT list."
			return resultBenign
		}
	}

	reg.Message = "The gift is in your account but your wallet did not display it. Import it manually with the contract address and token id."
	return resultFailed
}

// IsReady reports whether metadata is final rather than placeholder art
func IsReady(md *models.DisplayMetadata) bool {
	if md == nil || md.IsPlaceholder {
		return false
	}
	image := strings.TrimSpace(md.Image)
	if image == "" {
		return false
	}
	return !strings.Contains(strings.ToLower(image), "placeholder")
}
