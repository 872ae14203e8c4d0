package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/shiyuan-lin/carpool-api/models"
	"github.com/shiyuan-lin/carpool-api/services"
	"github.com/shiyuan-lin/carpool-api/utils"
)

// UploadAttachment handles POST /api/v1/uploads - stores a message
// attachment and returns the key to reference from a subsequent image or
// file message
func UploadAttachment(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.RespondValidation(c, "attachment file is required")
		return
	}

	contentType, isImage, err := utils.ValidateAttachment(fileHeader)
	if err != nil {
		utils.RespondValidation(c, err.Error())
		return
	}

	store := services.GetS3Service()
	if store == nil {
		utils.RespondError(c, errors.New("attachment storage is not configured"))
		return
	}

	key, err := store.UploadAttachment(fileHeader, contentType)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	url, err := store.GetPresignedURL(key)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	messageType := models.MessageFile
	if isImage {
		messageType = models.MessageImage
	}
	utils.RespondCreated(c, "attachment uploaded", gin.H{
		"attachment_key": key,
		"url":            url,
		"message_type":   messageType,
	})
}
