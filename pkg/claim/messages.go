package claim

import "github.com/cryptogift-wallets/giftclaim/pkg/models"

// MessageFor returns the user-facing explanation of an outcome. Every message says what
// happened, whether the gift is at risk and what to do next.
func MessageFor(state models.ClaimState, reason models.FailureReason) models.UserMessage {
	switch state {
	case models.ClaimSuccess:
		return models.UserMessage{
			WhatHappened: "Your gift has been claimed.",
			Safety:       "The gift is now in your wallet.",
			NextAction:   "Open your wallet to see it.",
		}
	case models.ClaimPendingConfirmation:
		return models.UserMessage{
			WhatHappened: "Your claim was sent but the network has not confirmed it yet.",
			Safety:       "Your gift is not lost. The transaction can still complete on its own.",
			NextAction:   "Wait a minute, then use Check status. Do not claim again.",
		}
	}

	switch reason {
	case models.ReasonUserRejected:
		return models.UserMessage{
			WhatHappened: "You declined the transaction in your wallet.",
			Safety:       "Nothing was sent and your gift is still waiting for you.",
			NextAction:   "Try again and approve the request in your wallet.",
		}
	case models.ReasonInsufficientResources:
		return models.UserMessage{
			WhatHappened: "The wallet could not pay for the transaction.",
			Safety:       "Nothing was claimed and your gift is still waiting for you.",
			NextAction:   "Add funds for the network fee or clear stuck pending transactions, then try again.",
		}
	case models.ReasonTransportRetryable:
		return models.UserMessage{
			WhatHappened: "The network could not be reached.",
			Safety:       "Nothing was sent and your gift is still waiting for you.",
			NextAction:   "Check your connection and try again.",
		}
	case models.ReasonClaimRejected:
		return models.UserMessage{
			WhatHappened: "The gift could not be unlocked with the details provided.",
			Safety:       "Nothing was sent. The gift stays in escrow.",
			NextAction:   "Check the password and try again, or ask the sender for a new link.",
		}
	case models.ReasonWalletUnavailable:
		return models.UserMessage{
			WhatHappened: "Your wallet is not ready to sign on this network.",
			Safety:       "Nothing was sent and your gift is still waiting for you.",
			NextAction:   "Unlock your wallet and switch to the right network, then try again.",
		}
	case models.ReasonReverted:
		return models.UserMessage{
			WhatHappened: "The gift contract rejected the claim transaction.",
			Safety:       "The gift was not transferred. Only the network fee may have been spent.",
			NextAction:   "The gift may already be claimed. Refresh the gift page before trying again.",
		}
	case models.ReasonDropped:
		return models.UserMessage{
			WhatHappened: "The network dropped the claim transaction before it was confirmed.",
			Safety:       "The gift was not transferred and is still waiting for you.",
			NextAction:   "Claim again.",
		}
	case models.ReasonInvalidRequest:
		return models.UserMessage{
			WhatHappened: "The claim details are incomplete or malformed.",
			Safety:       "Nothing was sent.",
			NextAction:   "Open the gift link again and retry.",
		}
	}

	return models.UserMessage{
		WhatHappened: "We could not get a definitive answer from the network after several tries.",
		Safety:       "The claim may have gone through. Do not assume it failed.",
		NextAction:   "Check your wallet activity or a block explorer, or use Check status, before trying again.",
	}
}
