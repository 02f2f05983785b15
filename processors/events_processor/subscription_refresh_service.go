package events_processor

import (
	"fmt"

	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

type SubscriptionRefreshService struct {
	flagStore models.Flagger
}

func NewSubscriptionRefreshService(flagStore models.Flagger) *SubscriptionRefreshService {
	return &SubscriptionRefreshService{
		flagStore: flagStore,
	}
}

func (s *SubscriptionRefreshService) FlagSubscriptionRefresh(event *models.Event) utils.Result[bool] {
	if event.SubscriptionID == nil {
		return utils.SuccessResult(false)
	}

	err := s.flagStore.Flag(fmt.Sprintf("%s:%s", event.OrganizationID, *event.SubscriptionID))
	if err != nil {
		return utils.FailedBoolResult(err)
	}

	return utils.SuccessResult(true)
}
